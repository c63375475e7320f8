package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/snaplist/snaplist/internal/models"
)

// Engine is the conversation surface the dispatcher drives.
type Engine interface {
	HandleMessage(ctx context.Context, sender, body string, mediaRefs []string) (models.Reply, error)
}

// genericErrorMessage is sent when the engine fails. Internal detail never
// reaches the user.
const genericErrorMessage = "Something went wrong — please try again."

// Dispatcher consumes inbound messages from a Service and routes them
// through the dialogue engine, sending the engine's reply back on the same
// channel.
type Dispatcher struct {
	service Service
	engine  Engine
}

// NewDispatcher creates a dispatcher connecting a messaging service to the
// engine.
func NewDispatcher(service Service, engine Engine) *Dispatcher {
	return &Dispatcher{service: service, engine: engine}
}

// Run consumes inbound messages until the context is cancelled or the
// service's response channel closes.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher starting")
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher stopping due to context cancellation")
			return
		case msg, ok := <-d.service.Responses():
			if !ok {
				slog.Info("Dispatcher stopping, responses channel closed")
				return
			}
			d.dispatch(ctx, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg models.InboundMessage) {
	sender, err := d.service.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Error("Dispatcher invalid sender", "error", err, "from", msg.From)
		return
	}

	reply, err := d.engine.HandleMessage(ctx, sender, msg.Body, msg.MediaRefs)
	if err != nil {
		slog.Error("Dispatcher engine error", "error", err, "from", sender)
		if sendErr := d.service.SendMessage(ctx, sender, genericErrorMessage); sendErr != nil {
			slog.Error("Dispatcher failed to send error message", "error", sendErr, "from", sender)
		}
		return
	}
	if reply.Text == "" {
		return
	}
	if err := d.service.SendReply(ctx, sender, reply); err != nil {
		slog.Error("Dispatcher failed to send reply", "error", err, "from", sender)
	}
}

// RenderReplyText renders a reply body plus its choice options as numbered
// lines, the lowest common denominator across channels without buttons.
func RenderReplyText(reply models.Reply) string {
	if len(reply.Choices) == 0 {
		return reply.Text
	}
	var b strings.Builder
	b.WriteString(reply.Text)
	for i, c := range reply.Choices {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, c.Label))
	}
	return b.String()
}

// replyMedia collects image URLs attached to choice options.
func replyMedia(reply models.Reply) []string {
	var out []string
	for _, c := range reply.Choices {
		out = append(out, c.Images...)
	}
	return out
}
