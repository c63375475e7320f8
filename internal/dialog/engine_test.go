package dialog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/snaplist/snaplist/internal/models"
	"github.com/snaplist/snaplist/internal/store"
)

// mockIdentifier returns a scripted identification result.
type mockIdentifier struct {
	result *models.IdentificationResult
	err    error
	calls  int
}

func (m *mockIdentifier) Identify(ctx context.Context, imageURL string) (*models.IdentificationResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockComparables struct {
	comps []models.Comparable
	err   error
}

func (m *mockComparables) SearchComparables(ctx context.Context, query string) ([]models.Comparable, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.comps, nil
}

type mockResolver struct {
	resolved string
	err      error
}

func (m *mockResolver) ResolveFreeform(ctx context.Context, userInput, proposed string, conversation []models.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.resolved, nil
}

func af1Result() *models.IdentificationResult {
	return &models.IdentificationResult{
		Title:      "Nike Air Force 1",
		Confidence: 0.9,
		VariantOptions: models.VariantOptions{
			Sizes: []string{"9", "10"},
		},
		Candidates: []models.Candidate{
			{Title: "Nike Air Force 1", Images: []string{"https://img.example.com/af1.jpg"}},
			{Title: "Nike Court Vision", Images: []string{"https://img.example.com/cv.jpg"}},
			{Title: "Nike Blazer Low", Images: []string{"https://img.example.com/blazer.jpg"}},
		},
	}
}

const testSender = "+15551234567"

func send(t *testing.T, e *Engine, body string, media ...string) models.Reply {
	t.Helper()
	reply, err := e.HandleMessage(context.Background(), testSender, body, media)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", body, err)
	}
	return reply
}

func activeDraft(t *testing.T, s store.Store) *models.Draft {
	t.Helper()
	u, err := s.GetOrCreateUser(testSender)
	if err != nil {
		t.Fatalf("GetOrCreateUser failed: %v", err)
	}
	d, err := s.GetActiveDraft(u.ID)
	if err != nil {
		t.Fatalf("GetActiveDraft failed: %v", err)
	}
	return d
}

func TestEngineFullHappyPath(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	reply := send(t, e, "i want to sell something")
	if reply.Text != msgSendPhotosToStart {
		t.Fatalf("trigger reply = %q", reply.Text)
	}

	reply = send(t, e, "", "https://media.example.com/shoe.jpg")
	if reply.Text != "Is this a Nike Air Force 1?" {
		t.Fatalf("identify reply = %q", reply.Text)
	}

	reply = send(t, e, "yes")
	if !strings.Contains(reply.Text, "size") {
		t.Fatalf("expected size question, got %q", reply.Text)
	}

	reply = send(t, e, "10")
	if !strings.Contains(reply.Text, "condition") {
		t.Fatalf("expected condition question, got %q", reply.Text)
	}

	reply = send(t, e, "yes")
	if reply.Text != msgAskPriceType {
		t.Fatalf("expected price type question, got %q", reply.Text)
	}

	reply = send(t, e, "quick sale")
	if reply.Text != msgAskFloorPrice {
		t.Fatalf("expected floor price question, got %q", reply.Text)
	}

	reply = send(t, e, "25")
	want := "Summary: Nike Air Force 1 | Size: 10 | Condition: Used – Good | Floor: $25. List it? (yes / not yet)"
	if reply.Text != want {
		t.Fatalf("summary = %q, want %q", reply.Text, want)
	}

	reply = send(t, e, "yes")
	if reply.Text != msgListed {
		t.Fatalf("final reply = %q", reply.Text)
	}

	if d := activeDraft(t, s); d != nil {
		t.Errorf("expected no active draft after completion, got %+v", d)
	}
}

func TestEngineRequiresPhotoBeforeResearch(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	reply := send(t, e, "it's a pair of sneakers")
	if reply.Text != msgNeedPhoto {
		t.Errorf("expected photo nudge, got %q", reply.Text)
	}
}

func TestEngineNoDraftNudge(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s)
	reply := send(t, e, "hello")
	if reply.Text != msgNoActiveDraft {
		t.Errorf("expected no-draft nudge, got %q", reply.Text)
	}
	if d := activeDraft(t, s); d != nil {
		t.Errorf("nudge must not create a draft, got %+v", d)
	}
}

func TestEngineTriggerAbandonsActiveDraft(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	first := activeDraft(t, s)

	send(t, e, "actually I want to sell something else")
	second := activeDraft(t, s)

	if first == nil || second == nil {
		t.Fatal("expected active drafts at both points")
	}
	if first.ID == second.ID {
		t.Error("expected trigger to start a fresh draft")
	}
	if second.Stage != models.StageAwaitingPhotos {
		t.Errorf("fresh draft stage = %q", second.Stage)
	}
}

func TestEngineLowConfidenceAsksLabelPhoto(t *testing.T) {
	low := af1Result()
	low.Confidence = 0.3
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: low}))

	send(t, e, "i want to sell something")
	reply := send(t, e, "", "https://media.example.com/shoe.jpg")
	if reply.Text != msgLowConfidence {
		t.Fatalf("expected low-confidence ask, got %q", reply.Text)
	}

	// A typed name on the label-photo ask confirms the identity directly.
	reply = send(t, e, "Air Jordan 1 Lows")
	if !strings.Contains(reply.Text, "condition") {
		t.Fatalf("expected condition question after named identity, got %q", reply.Text)
	}
	d := activeDraft(t, s)
	f, err := s.GetFact(d.ID, models.FactKeyIdentity)
	if err != nil || f == nil {
		t.Fatalf("identity fact missing: %v", err)
	}
	if f.Value != "Air Jordan 1 Lows" || f.Status != models.FactStatusConfirmed {
		t.Errorf("identity fact = %+v", f)
	}
}

func TestEngineIdentifyFailureDegrades(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{err: errors.New("provider down")}))

	send(t, e, "i want to sell something")
	reply := send(t, e, "", "https://media.example.com/shoe.jpg")
	if reply.Text != msgAskLabelPhoto {
		t.Fatalf("expected degraded label-photo ask, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "provider") {
		t.Error("provider failure leaked into the user reply")
	}
}

func TestEngineBrowseFlow(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")

	reply := send(t, e, "show similar")
	if !strings.Contains(reply.Text, "Nike Court Vision") {
		t.Fatalf("expected first alternative, got %q", reply.Text)
	}

	reply = send(t, e, "next")
	if !strings.Contains(reply.Text, "Nike Blazer Low") {
		t.Fatalf("expected second alternative, got %q", reply.Text)
	}

	// Paging past the end exits browsing to the label-photo ask, once.
	reply = send(t, e, "next")
	if reply.Text != msgAskLabelPhoto {
		t.Fatalf("expected label-photo ask past end, got %q", reply.Text)
	}
	d := activeDraft(t, s)
	if d.Pending == nil || d.Pending.Kind != models.PromptAskLabelPhoto {
		t.Fatalf("expected ask_label_photo pending, got %+v", d.Pending)
	}
}

func TestEngineBrowseThisIsMine(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "no")
	reply := send(t, e, "this is mine")
	if !strings.Contains(reply.Text, "size") {
		t.Fatalf("expected size question after choosing candidate, got %q", reply.Text)
	}

	d := activeDraft(t, s)
	f, err := s.GetFact(d.ID, models.FactKeyIdentity)
	if err != nil || f == nil {
		t.Fatalf("identity fact missing: %v", err)
	}
	if f.Value != "Nike Court Vision" {
		t.Errorf("identity = %q, want chosen candidate", f.Value)
	}
	refs, err := s.GetPhotos(d.ID, models.PhotoKindReference)
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("expected chosen candidate image as reference photo, got %d", len(refs))
	}
}

func TestEngineConditionOverride(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	send(t, e, "10")

	// Decline the suggestion, then pick from the list.
	reply := send(t, e, "no")
	if reply.Text != msgAskCondition {
		t.Fatalf("expected condition list, got %q", reply.Text)
	}
	reply = send(t, e, "new with tags")
	if reply.Text != msgAskPriceType {
		t.Fatalf("expected price type question, got %q", reply.Text)
	}

	d := activeDraft(t, s)
	f, _ := s.GetFact(d.ID, models.FactKeyCondition)
	if f == nil || f.Value != "New with tags" {
		t.Errorf("condition fact = %+v, want New with tags", f)
	}
}

func TestEngineComparablesGroundCondition(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s,
		WithIdentifier(&mockIdentifier{result: af1Result()}),
		WithComparables(&mockComparables{comps: []models.Comparable{
			{Title: "Nike AF1 sz 10", Condition: "like new", Price: "45"},
			{Title: "Air Force One", Condition: "like new", Price: "50"},
			{Title: "AF1 beaters", Condition: "acceptable", Price: "20"},
		}}),
	)

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	reply := send(t, e, "10")
	if !strings.Contains(reply.Text, "Used – Like New") {
		t.Fatalf("expected comparables-grounded suggestion, got %q", reply.Text)
	}
}

func TestEngineUnparseableReAsksUnchanged(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	send(t, e, "10")
	send(t, e, "yes")
	send(t, e, "quick sale")

	// "free" has no digits: the floor question repeats verbatim.
	reply := send(t, e, "free")
	if reply.Text != msgAskFloorPrice {
		t.Fatalf("expected floor re-ask, got %q", reply.Text)
	}
	reply = send(t, e, "$25.50")
	if !strings.Contains(reply.Text, "Floor: $25.50") {
		t.Fatalf("expected summary with 25.50, got %q", reply.Text)
	}
}

func TestEngineFinalConfirmNotYet(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	send(t, e, "10")
	send(t, e, "yes")
	send(t, e, "quick sale")
	send(t, e, "25")

	reply := send(t, e, "not yet")
	if reply.Text != msgNotYet {
		t.Fatalf("expected not-yet reply, got %q", reply.Text)
	}
	d := activeDraft(t, s)
	if d == nil || d.Stage != models.StageFinalConfirm {
		t.Fatalf("expected draft to stay at final_confirm, got %+v", d)
	}

	// Saying yes later still completes the listing.
	reply = send(t, e, "list it")
	if reply.Text != msgListed {
		t.Fatalf("expected listed reply, got %q", reply.Text)
	}
}

func TestEngineRecoversFromLostPending(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")

	// Simulate a crash that lost the pending prompt but kept stage and facts.
	d := activeDraft(t, s)
	d.Pending = nil
	if err := s.UpdateDraft(d); err != nil {
		t.Fatalf("UpdateDraft failed: %v", err)
	}

	// The answer still lands against the derived question.
	reply := send(t, e, "yes")
	if !strings.Contains(reply.Text, "size") {
		t.Fatalf("expected size question after recovery, got %q", reply.Text)
	}
	f, _ := s.GetFact(d.ID, models.FactKeyIdentity)
	if f == nil || f.Value != "Nike Air Force 1" || f.Status != models.FactStatusConfirmed {
		t.Errorf("identity fact after recovery = %+v", f)
	}
}

func TestEngineStageMonotonic(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	inputs := []struct {
		body  string
		media []string
	}{
		{"", []string{"https://media.example.com/shoe.jpg"}},
		{"yes", nil},
		{"blah blah", nil}, // unparseable: stage must hold
		{"10", nil},
		{"yes", nil},
		{"quick sale", nil},
		{"25", nil},
		{"yes", nil},
	}

	prev := models.StageAwaitingPhotos
	for _, in := range inputs {
		send(t, e, in.body, in.media...)
		u, _ := s.GetOrCreateUser(testSender)
		d, err := s.GetActiveDraft(u.ID)
		if err != nil {
			t.Fatalf("GetActiveDraft failed: %v", err)
		}
		if d == nil {
			break // completed
		}
		if !models.StageAtOrAfter(d.Stage, prev) {
			t.Fatalf("stage regressed from %q to %q after %q", prev, d.Stage, in.body)
		}
		prev = d.Stage
	}
}

func TestEngineCompleteDraftPointsToNewListing(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	send(t, e, "10")
	send(t, e, "yes")
	send(t, e, "quick sale")
	send(t, e, "25")
	send(t, e, "yes")

	reply := send(t, e, "thanks!")
	if reply.Text != msgNoActiveDraft {
		t.Errorf("expected no-draft nudge after completion, got %q", reply.Text)
	}
}

func TestEngineMidFlowPhotoIsRegistered(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "yes")
	send(t, e, "10")
	send(t, e, "yes")

	// A damage shot sent alongside the price-type answer is kept, and the
	// answer itself still lands.
	reply := send(t, e, "quick sale", "https://media.example.com/damage.jpg")
	if reply.Text != msgAskFloorPrice {
		t.Fatalf("expected floor price question, got %q", reply.Text)
	}

	d := activeDraft(t, s)
	photos, err := s.GetPhotos(d.ID, models.PhotoKindUser)
	if err != nil {
		t.Fatalf("GetPhotos failed: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected intake photo plus mid-flow photo, got %d", len(photos))
	}
	if photos[1].StorageRef != "https://media.example.com/damage.jpg" {
		t.Errorf("mid-flow photo ref = %q", photos[1].StorageRef)
	}
}

func TestEngineUserLocksPruned(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s, WithIdentifier(&mockIdentifier{result: af1Result()}))

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")

	e.mu.Lock()
	n := len(e.userLocks)
	e.mu.Unlock()
	if n != 0 {
		t.Errorf("expected user lock map to be empty between turns, got %d entries", n)
	}
}

func TestEngineResolverNormalizesFreeform(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s,
		WithIdentifier(&mockIdentifier{result: af1Result()}),
		WithResolver(&mockResolver{resolved: "Air Jordan 1 Low"}),
	)

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "they're jordan 1 lows actually")

	d := activeDraft(t, s)
	f, _ := s.GetFact(d.ID, models.FactKeyIdentity)
	if f == nil || f.Value != "Air Jordan 1 Low" {
		t.Errorf("identity fact = %+v, want resolver output", f)
	}
}

func TestEngineResolverFailureFallsBackToRawText(t *testing.T) {
	s := store.NewInMemoryStore()
	e := NewEngine(s,
		WithIdentifier(&mockIdentifier{result: af1Result()}),
		WithResolver(&mockResolver{err: errors.New("llm down")}),
	)

	send(t, e, "i want to sell something")
	send(t, e, "", "https://media.example.com/shoe.jpg")
	send(t, e, "vintage denim jacket")

	d := activeDraft(t, s)
	f, _ := s.GetFact(d.ID, models.FactKeyIdentity)
	if f == nil || f.Value != "vintage denim jacket" {
		t.Errorf("identity fact = %+v, want raw text fallback", f)
	}
}
