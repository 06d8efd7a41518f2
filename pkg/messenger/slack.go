package messenger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// permanentSlackErrors are API error codes that retrying cannot fix.
var permanentSlackErrors = map[string]struct{}{
	"channel_not_found": {},
	"user_not_found":    {},
	"is_archived":       {},
	"not_in_channel":    {},
	"invalid_auth":      {},
	"account_inactive":  {},
	"token_revoked":     {},
	"token_expired":     {},
	"no_permission":     {},
}

type SlackSender struct {
	client *slack.Client
}

func NewSlackSender(botToken string, timeout time.Duration) *SlackSender {
	httpClient := &http.Client{Timeout: timeout}
	return &SlackSender{
		client: slack.New(botToken, slack.OptionHTTPClient(httpClient)),
	}
}

func (s *SlackSender) SendToChannel(ctx context.Context, address string, payload Payload) (*Receipt, error) {
	channel, ts, err := s.client.PostMessageContext(ctx, address,
		slack.MsgOptionText(payload.Header, false),
		slack.MsgOptionBlocks(buildBlocks(payload)...),
	)
	if err != nil {
		return nil, classifySlackError(err)
	}
	return &Receipt{MessageID: ts, Channel: channel}, nil
}

func (s *SlackSender) SendDirect(ctx context.Context, userID string, payload Payload) (*Receipt, error) {
	channel, _, _, err := s.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return nil, classifySlackError(err)
	}
	return s.SendToChannel(ctx, channel.ID, payload)
}

func (s *SlackSender) Ping(ctx context.Context) error {
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return classifySlackError(err)
	}
	return nil
}

func buildBlocks(payload Payload) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, payload.Header, false, false)),
	}

	for _, section := range payload.Sections {
		if section.Body == "" {
			continue
		}
		text := section.Body
		if section.Title != "" {
			text = fmt.Sprintf("*%s*\n%s", section.Title, section.Body)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil,
		))
	}

	if payload.Footer != "" {
		blocks = append(blocks,
			slack.NewDividerBlock(),
			slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType, payload.Footer, false, false),
			),
		)
	}

	return blocks
}

func classifySlackError(err error) error {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return fmt.Errorf("%w: slack rate limited, retry after %s", ErrTransient, rateLimited.RetryAfter)
	}

	msg := err.Error()
	if _, permanent := permanentSlackErrors[msg]; permanent {
		if strings.Contains(msg, "auth") || strings.Contains(msg, "token") || msg == "account_inactive" {
			return fmt.Errorf("%w: %s", ErrCredentialRevoked, msg)
		}
		return fmt.Errorf("%w: %s", ErrInvalidTarget, msg)
	}

	// Unknown API or network error, let the caller's retry policy decide.
	return err
}
