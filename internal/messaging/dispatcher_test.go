package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snaplist/snaplist/internal/models"
)

// mockService is an in-memory Service for dispatcher tests.
type mockService struct {
	responses chan models.InboundMessage
	sent      []string
}

func newMockService() *mockService {
	return &mockService{responses: make(chan models.InboundMessage, 10)}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("empty recipient")
	}
	return recipient, nil
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.sent = append(m.sent, body)
	return nil
}

func (m *mockService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	m.sent = append(m.sent, RenderReplyText(reply))
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { close(m.responses); return nil }
func (m *mockService) Responses() <-chan models.InboundMessage {
	return m.responses
}

type scriptedEngine struct {
	reply models.Reply
	err   error
	calls []models.InboundMessage
}

func (s *scriptedEngine) HandleMessage(ctx context.Context, sender, body string, mediaRefs []string) (models.Reply, error) {
	s.calls = append(s.calls, models.InboundMessage{From: sender, Body: body, MediaRefs: mediaRefs})
	return s.reply, s.err
}

func runDispatcher(t *testing.T, svc *mockService, eng Engine, msgs ...models.InboundMessage) {
	t.Helper()
	d := NewDispatcher(svc, eng)
	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()
	for _, m := range msgs {
		svc.responses <- m
	}
	svc.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherRoutesReply(t *testing.T) {
	svc := newMockService()
	eng := &scriptedEngine{reply: models.Reply{Text: "Is this a Nike Air Force 1?"}}

	runDispatcher(t, svc, eng, models.InboundMessage{
		From:      "+15551234567",
		Body:      "",
		MediaRefs: []string{"https://media.example.com/shoe.jpg"},
	})

	if len(eng.calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(eng.calls))
	}
	if len(eng.calls[0].MediaRefs) != 1 {
		t.Errorf("media refs not forwarded: %+v", eng.calls[0])
	}
	if len(svc.sent) != 1 || svc.sent[0] != "Is this a Nike Air Force 1?" {
		t.Errorf("reply not sent, got %v", svc.sent)
	}
}

func TestDispatcherSendsGenericErrorMessage(t *testing.T) {
	svc := newMockService()
	eng := &scriptedEngine{err: errors.New("database unreachable: secret detail")}

	runDispatcher(t, svc, eng, models.InboundMessage{From: "+15551234567", Body: "yes"})

	if len(svc.sent) != 1 {
		t.Fatalf("expected 1 message, got %v", svc.sent)
	}
	if svc.sent[0] != genericErrorMessage {
		t.Errorf("sent %q, want generic error message", svc.sent[0])
	}
}

func TestDispatcherSkipsInvalidSender(t *testing.T) {
	svc := newMockService()
	eng := &scriptedEngine{reply: models.Reply{Text: "hi"}}

	runDispatcher(t, svc, eng, models.InboundMessage{From: "", Body: "yes"})

	if len(eng.calls) != 0 {
		t.Errorf("engine called for invalid sender: %+v", eng.calls)
	}
}

func TestRenderReplyText(t *testing.T) {
	reply := models.Reply{
		Text: "Quick sale or best price?",
		Choices: []models.ChoiceOption{
			{Label: "Quick sale", Value: "quick_sale"},
			{Label: "Best price", Value: "best_price"},
		},
	}
	want := "Quick sale or best price?\n1. Quick sale\n2. Best price"
	if got := RenderReplyText(reply); got != want {
		t.Errorf("RenderReplyText = %q, want %q", got, want)
	}

	plain := models.Reply{Text: "What's your absolute floor price? (e.g. 25 or $25)"}
	if got := RenderReplyText(plain); got != plain.Text {
		t.Errorf("plain reply altered: %q", got)
	}
}

func TestReplyMedia(t *testing.T) {
	reply := models.Reply{
		Text: "How about this one: Nike Court Vision?",
		Choices: []models.ChoiceOption{
			{Label: "This is mine", Value: "this_is_mine", Images: []string{"https://img.example.com/cv.jpg"}},
			{Label: "Next", Value: "next"},
		},
	}
	media := replyMedia(reply)
	if len(media) != 1 || media[0] != "https://img.example.com/cv.jpg" {
		t.Errorf("replyMedia = %v", media)
	}
}
