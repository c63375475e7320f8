// Package messaging provides pluggable message channels for SnapList and
// the dispatcher that connects them to the dialogue engine.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/snaplist/snaplist/internal/models"
)

// Channel configuration shared by service implementations.
const (
	// DefaultChannelBufferSize is the buffer size for inbound message channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel sends before dropping.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service is stopped")

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each channel implements its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendReply sends an engine reply, rendering choice options the way the
	// channel supports (numbered lines, attached media).
	SendReply(ctx context.Context, to string, reply models.Reply) error

	// Start begins any background processing (event handlers, polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.InboundMessage
}
