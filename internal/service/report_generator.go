package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"insight-reports/config"
	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/internal/repository"
	"insight-reports/pkg/logger"
)

// ReportGenerationService orchestrates a single generation run: build
// the request, call the AI collaborator under a mode-specific deadline,
// normalize the output into sections.
type ReportGenerationService interface {
	Run(ctx context.Context, report *model.ScheduledReport) (*dto.ReportContent, error)
	ModeFor(report *model.ScheduledReport) dto.GenerationMode
	TimeoutFor(mode dto.GenerationMode) time.Duration
}

type reportGenerationService struct {
	cfg            *config.Config
	log            *logger.Logger
	generationRepo repository.GenerationRepository
}

func NewReportGenerationService(cfg *config.Config, log *logger.Logger, generationRepo repository.GenerationRepository) ReportGenerationService {
	return &reportGenerationService{
		cfg:            cfg,
		log:            log,
		generationRepo: generationRepo,
	}
}

func (s *reportGenerationService) ModeFor(report *model.ScheduledReport) dto.GenerationMode {
	if report.Deep {
		return dto.ModeDeep
	}
	return dto.ModeQuick
}

func (s *reportGenerationService) TimeoutFor(mode dto.GenerationMode) time.Duration {
	if mode == dto.ModeDeep {
		return s.cfg.Gemini.DeepTimeout
	}
	return s.cfg.Gemini.QuickTimeout
}

func (s *reportGenerationService) Run(ctx context.Context, report *model.ScheduledReport) (*dto.ReportContent, error) {
	mode := s.ModeFor(report)

	runCtx, cancel := context.WithTimeout(ctx, s.TimeoutFor(mode))
	defer cancel()

	started := time.Now()
	raw, err := s.generationRepo.Generate(runCtx, dto.GenerationRequest{
		ReportName:  report.Name,
		Description: report.Description,
		Query:       report.Query,
		Frequency:   string(report.Frequency),
		OwnerRole:   report.OwnerID,
		Mode:        mode,
	})
	if err != nil {
		reason := dto.GenerationCollaboratorFailure
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil {
			reason = dto.GenerationTimeout
		}
		s.log.ErrorContext(ctx, "Report generation failed",
			logger.ErrorField(err),
			logger.StringField("report_id", report.ID),
			logger.StringField("mode", string(mode)),
		)
		return nil, &dto.GenerationError{Reason: reason, Err: err}
	}

	content := parseSections(raw)
	content.GeneratedAt = time.Now()
	content.Duration = time.Since(started)
	content.Mode = mode

	return content, nil
}

// parseSections splits the collaborator's free-form output into the
// four report sections by matching headings. Output without any
// recognizable heading lands entirely in Summary.
func parseSections(raw string) *dto.ReportContent {
	content := &dto.ReportContent{}

	assign := func(section, text string) {
		text = strings.TrimSpace(text)
		switch section {
		case "summary":
			content.Summary = text
		case "key_metrics":
			content.KeyMetrics = text
		case "insights":
			content.Insights = text
		case "recommendations":
			content.Recommendations = text
		}
	}

	current := ""
	var buf []string
	var preamble []string

	for _, line := range strings.Split(raw, "\n") {
		section, isHeading := matchHeading(line)
		if isHeading {
			if current != "" {
				assign(current, strings.Join(buf, "\n"))
			}
			current = section
			buf = buf[:0]
			continue
		}
		if current == "" {
			preamble = append(preamble, line)
			continue
		}
		buf = append(buf, line)
	}
	if current != "" {
		assign(current, strings.Join(buf, "\n"))
	}

	if current == "" {
		// No structure at all, whole output is the summary.
		content.Summary = strings.TrimSpace(raw)
		return content
	}

	if content.Summary == "" && len(preamble) > 0 {
		content.Summary = strings.TrimSpace(strings.Join(preamble, "\n"))
	}

	return content
}

// matchHeading recognizes section headings in common markdown shapes:
// "## Summary", "**Key Metrics**", "2. Insights", "Recommendations:".
func matchHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 64 {
		return "", false
	}
	normalized := strings.ToLower(strings.Trim(trimmed, "#*_-:. \t0123456789"))

	switch {
	case normalized == "summary" || normalized == "executive summary":
		return "summary", true
	case normalized == "key metrics" || normalized == "metrics" || normalized == "key metrics summary":
		return "key_metrics", true
	case normalized == "insights" || normalized == "data insights" || normalized == "key insights":
		return "insights", true
	case normalized == "recommendations" || normalized == "recommendation":
		return "recommendations", true
	}
	return "", false
}
