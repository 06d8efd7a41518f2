package messenger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"insight-reports/pkg/common"
)

// Payload is the platform-agnostic message shape. Delivery adapters
// translate it into whatever the platform expects; swapping platforms
// never changes the payload.
type Payload struct {
	Header   string    `json:"header"`
	Sections []Section `json:"sections"`
	Footer   string    `json:"footer"`
}

type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Receipt identifies a delivered message on the target platform.
type Receipt struct {
	MessageID string `json:"message_id"`
	Channel   string `json:"channel"`
}

// Sender delivers a payload to a channel or to a single user.
type Sender interface {
	SendToChannel(ctx context.Context, address string, payload Payload) (*Receipt, error)
	SendDirect(ctx context.Context, userID string, payload Payload) (*Receipt, error)
	// Ping verifies the credential against the platform.
	Ping(ctx context.Context) error
}

// ErrInvalidTarget marks addresses the platform rejected. Not retried.
var ErrInvalidTarget = errors.New("invalid delivery target")

// ErrCredentialRevoked marks credentials the platform no longer accepts.
var ErrCredentialRevoked = errors.New("credential revoked")

// ErrTransient marks failures worth retrying (rate limits, network).
var ErrTransient = errors.New("transient delivery failure")

// New builds a Sender for the credential's platform.
func New(platform, accessSecret string, timeout time.Duration) (Sender, error) {
	switch platform {
	case common.PLATFORM_SLACK:
		return NewSlackSender(accessSecret, timeout), nil
	case common.PLATFORM_TELEGRAM:
		return NewTelegramSender(accessSecret)
	default:
		return nil, fmt.Errorf("%w: unsupported messaging platform %q, expected one of %s",
			ErrInvalidTarget, platform, strings.Join(common.GetPlatformList(), ", "))
	}
}

// IsRetryable reports whether a delivery error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidTarget) || errors.Is(err, ErrCredentialRevoked) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset")
}
