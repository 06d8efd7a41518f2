package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/internal/repository"
	"insight-reports/pkg/logger"
	"insight-reports/pkg/messenger"
	"insight-reports/pkg/retry"
	"insight-reports/pkg/utils"
)

// DeliveryService resolves the workspace credential, formats the report
// into a platform message and sends it with bounded retries. Permanent
// failures (bad target, revoked credential) never retry.
type DeliveryService interface {
	Deliver(ctx context.Context, report *model.ScheduledReport, content *dto.ReportContent) (*messenger.Receipt, error)
}

type deliveryService struct {
	cfg           *config.Config
	log           *logger.Logger
	workspaceRepo repository.WorkspaceRepository
	policy        retry.Policy
	newSender     func(platform, accessSecret string, timeout time.Duration) (messenger.Sender, error)
}

func NewDeliveryService(cfg *config.Config, log *logger.Logger, workspaceRepo repository.WorkspaceRepository) DeliveryService {
	return &deliveryService{
		cfg:           cfg,
		log:           log,
		workspaceRepo: workspaceRepo,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.ExponentialBackoff(time.Second, 4),
			Retryable:   messenger.IsRetryable,
		},
		newSender: messenger.New,
	}
}

func (s *deliveryService) Deliver(ctx context.Context, report *model.ScheduledReport, content *dto.ReportContent) (*messenger.Receipt, error) {
	if report.DeliveryKind == model.DeliveryNone {
		return nil, nil
	}

	credential, err := s.workspaceRepo.FindByID(ctx, report.WorkspaceID)
	if err != nil {
		if errors.Is(err, dto.ErrWorkspaceNotFound) {
			return nil, &dto.DeliveryError{Kind: dto.DeliveryCredentialInactive, Err: err}
		}
		return nil, &dto.DeliveryError{Kind: dto.DeliveryTransient, Err: err}
	}
	if !credential.IsActive {
		return nil, &dto.DeliveryError{
			Kind: dto.DeliveryCredentialInactive,
			Err:  fmt.Errorf("workspace %s is deactivated", credential.ID),
		}
	}

	// Constructor failures carry the same sentinels as send failures:
	// an unsupported platform is an invalid target, a revoked telegram
	// token is an inactive credential, anything else stays transient.
	sender, err := s.newSender(credential.Platform, credential.AccessSecret, s.cfg.Slack.Timeout)
	if err != nil {
		return nil, classifyDeliveryError(err)
	}

	payload := buildPayload(report, content)

	var receipt *messenger.Receipt
	sendErr := s.policy.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		switch report.DeliveryKind {
		case model.DeliveryChannel:
			receipt, attemptErr = sender.SendToChannel(ctx, report.DeliveryAddress, payload)
		case model.DeliveryDirectMessage:
			receipt, attemptErr = sender.SendDirect(ctx, report.DeliveryAddress, payload)
		default:
			return &dto.DeliveryError{
				Kind: dto.DeliveryInvalidTarget,
				Err:  fmt.Errorf("unknown delivery kind %q", report.DeliveryKind),
			}
		}
		if attemptErr != nil {
			s.log.WarnContext(ctx, "Delivery attempt failed",
				logger.ErrorField(attemptErr),
				logger.StringField("report_id", report.ID),
				logger.StringField("platform", credential.Platform),
			)
		}
		return attemptErr
	})
	if sendErr != nil {
		return nil, classifyDeliveryError(sendErr)
	}

	s.log.InfoContext(ctx, "Report delivered",
		logger.StringField("report_id", report.ID),
		logger.StringField("platform", credential.Platform),
		logger.StringField("channel", receipt.Channel),
	)
	return receipt, nil
}

func classifyDeliveryError(err error) error {
	var deliveryErr *dto.DeliveryError
	if errors.As(err, &deliveryErr) {
		return err
	}
	switch {
	case errors.Is(err, messenger.ErrCredentialRevoked):
		return &dto.DeliveryError{Kind: dto.DeliveryCredentialInactive, Err: err}
	case errors.Is(err, messenger.ErrInvalidTarget):
		return &dto.DeliveryError{Kind: dto.DeliveryInvalidTarget, Err: err}
	default:
		return &dto.DeliveryError{Kind: dto.DeliveryTransient, Err: err}
	}
}

// buildPayload renders the generated content into the platform-agnostic
// message shape. Empty sections are dropped so quick runs stay compact.
func buildPayload(report *model.ScheduledReport, content *dto.ReportContent) messenger.Payload {
	payload := messenger.Payload{
		Header: fmt.Sprintf("📊 %s · %s", report.Name, utils.PrettyDate(content.GeneratedAt)),
		Footer: fmt.Sprintf("Generated in %s · %s report", utils.FormatDuration(content.Duration), content.Mode),
	}

	for _, section := range []messenger.Section{
		{Title: "Summary", Body: content.Summary},
		{Title: "Key Metrics", Body: content.KeyMetrics},
		{Title: "Insights", Body: content.Insights},
		{Title: "Recommendations", Body: content.Recommendations},
	} {
		if section.Body == "" {
			continue
		}
		payload.Sections = append(payload.Sections, section)
	}

	return payload
}
