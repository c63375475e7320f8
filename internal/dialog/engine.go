package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/snaplist/snaplist/internal/models"
	"github.com/snaplist/snaplist/internal/store"
	"github.com/snaplist/snaplist/internal/util"
)

// Identifier turns a photo into a ranked identification result.
type Identifier interface {
	Identify(ctx context.Context, imageURL string) (*models.IdentificationResult, error)
}

// ComparableSearcher finds sold/active marketplace listings for an item.
type ComparableSearcher interface {
	SearchComparables(ctx context.Context, query string) ([]models.Comparable, error)
}

// Resolver normalizes a freeform item name using recent conversation
// context. It returns the canonical name, or "" when it cannot improve on
// the raw input.
type Resolver interface {
	ResolveFreeform(ctx context.Context, userInput, proposed string, conversation []models.Message) (string, error)
}

// Engine drives the listing intake conversation. One Engine serves all
// users; turns for the same user are serialized on a per-user mutex, and
// draft writes carry an optimistic version check as the cross-instance
// guard.
type Engine struct {
	store       store.Store
	identifier  Identifier
	comparables ComparableSearcher
	resolver    Resolver

	identifyTimeout     time.Duration
	confidenceThreshold float64
	contextMessages     int

	mu        sync.Mutex
	userLocks map[string]*userLock
}

// userLock is one per-user mutex entry with a holder count, so the map can
// be pruned once the last turn for that user releases it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// EngineOpts holds configuration options for the Engine.
type EngineOpts struct {
	Identifier          Identifier
	Comparables         ComparableSearcher
	Resolver            Resolver
	IdentifyTimeout     time.Duration
	ConfidenceThreshold float64
}

// EngineOption defines a configuration option for the Engine.
type EngineOption func(*EngineOpts)

// WithIdentifier sets the identification pipeline.
func WithIdentifier(i Identifier) EngineOption {
	return func(o *EngineOpts) { o.Identifier = i }
}

// WithComparables sets the comparable listing searcher.
func WithComparables(c ComparableSearcher) EngineOption {
	return func(o *EngineOpts) { o.Comparables = c }
}

// WithResolver sets the freeform name resolver.
func WithResolver(r Resolver) EngineOption {
	return func(o *EngineOpts) { o.Resolver = r }
}

// WithIdentifyTimeout bounds one identification or comparables call.
func WithIdentifyTimeout(d time.Duration) EngineOption {
	return func(o *EngineOpts) { o.IdentifyTimeout = d }
}

// WithConfidenceThreshold sets the minimum identification confidence for
// proposing an identity instead of asking for a label photo.
func WithConfidenceThreshold(t float64) EngineOption {
	return func(o *EngineOpts) { o.ConfidenceThreshold = t }
}

// NewEngine creates a conversation engine on top of a store. Identification,
// comparables, and resolver are optional; absent integrations degrade to the
// label-photo and raw-text paths.
func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	cfg := EngineOpts{
		IdentifyTimeout:     util.ParseDurationEnv("IDENTIFY_TIMEOUT", 20*time.Second),
		ConfidenceThreshold: util.ParseFloatEnv("IDENTIFY_CONFIDENCE_THRESHOLD", 0.6),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:               st,
		identifier:          cfg.Identifier,
		comparables:         cfg.Comparables,
		resolver:            cfg.Resolver,
		identifyTimeout:     cfg.IdentifyTimeout,
		confidenceThreshold: cfg.ConfidenceThreshold,
		contextMessages:     12,
		userLocks:           make(map[string]*userLock),
	}
}

// HandleMessage processes one inbound message and returns the reply to send.
// It is safe for concurrent use; turns for the same sender are serialized.
func (e *Engine) HandleMessage(ctx context.Context, sender, body string, mediaRefs []string) (models.Reply, error) {
	user, err := e.store.GetOrCreateUser(sender)
	if err != nil {
		return models.Reply{}, fmt.Errorf("failed to resolve user: %w", err)
	}
	unlock := e.lockUser(user.ID)
	defer unlock()

	if IsTrigger(body) {
		draft, err := e.store.StartDraft(user.ID)
		if err != nil {
			return models.Reply{}, fmt.Errorf("failed to start draft: %w", err)
		}
		slog.Info("Engine.HandleMessage started draft", "userID", user.ID, "draftID", draft.ID)
		e.logMessage(draft.ID, models.DirectionIn, body, mediaRefs)
		if err := e.registerPhotos(draft.ID, mediaRefs); err != nil {
			return models.Reply{}, err
		}
		return e.respond(&draft, models.Reply{Text: msgSendPhotosToStart})
	}

	draft, err := e.store.GetActiveDraft(user.ID)
	if err != nil {
		return models.Reply{}, fmt.Errorf("failed to load active draft: %w", err)
	}
	if draft == nil {
		slog.Debug("Engine.HandleMessage no active draft", "userID", user.ID)
		return models.Reply{Text: msgNoActiveDraft}, nil
	}
	e.logMessage(draft.ID, models.DirectionIn, body, mediaRefs)

	// Every turn keeps its media: a damage shot sent alongside a pricing
	// answer still lands in the draft's photo set.
	if err := e.registerPhotos(draft.ID, mediaRefs); err != nil {
		return models.Reply{}, err
	}

	if draft.Stage == models.StageComplete {
		return models.Reply{Text: msgAlreadyComplete}, nil
	}

	if draft.Stage == models.StageAwaitingPhotos || draft.Stage == models.StageResearchingIdentity {
		if len(mediaRefs) == 0 {
			return e.respond(draft, models.Reply{Text: msgNeedPhoto})
		}
		return e.runIdentification(ctx, draft, mediaRefs[0])
	}

	facts, err := e.loadFacts(draft.ID)
	if err != nil {
		return models.Reply{}, err
	}

	// Take the pending prompt and clear it; whatever happens next writes a
	// fresh one. A missing prompt (crash between sends, schema migration) is
	// re-derived from stage and facts.
	pending := draft.Pending
	draft.Pending = nil
	if pending == nil || pending.Validate() != nil {
		step := DeriveStep(draft.Stage, facts)
		if step.Pending == nil {
			return e.respond(draft, step.Reply)
		}
		pending = step.Pending
	}

	switch pending.Kind {
	case models.PromptConfirmIdentity:
		return e.handleConfirmIdentity(ctx, draft, facts, pending, body)
	case models.PromptBrowseAlternatives:
		return e.handleBrowse(ctx, draft, facts, pending, body)
	case models.PromptAskLabelPhoto:
		return e.handleLabelPhoto(ctx, draft, facts, body, mediaRefs)
	case models.PromptChooseVariant:
		return e.handleChooseVariant(ctx, draft, facts, pending, body)
	case models.PromptChooseCondition:
		return e.handleChooseCondition(ctx, draft, facts, pending, body)
	case models.PromptPricing:
		return e.handlePricing(ctx, draft, facts, pending, body)
	case models.PromptFinalConfirm:
		return e.handleFinalConfirm(draft, facts, pending, body)
	}
	return models.Reply{}, fmt.Errorf("unhandled pending prompt kind %q", pending.Kind)
}

// registerPhotos records inbound media against the draft. It runs on every
// turn, not just the photo-expecting steps.
func (e *Engine) registerPhotos(draftID string, mediaRefs []string) error {
	for _, ref := range mediaRefs {
		if err := e.store.AddPhoto(models.Photo{DraftID: draftID, Kind: models.PhotoKindUser, StorageRef: ref}); err != nil {
			return fmt.Errorf("failed to register photo: %w", err)
		}
	}
	return nil
}

// runIdentification calls the identification pipeline within the research
// budget and transitions the draft to identity confirmation. Provider
// failure and low confidence both degrade to asking for a label photo; the
// failure itself is never shown to the user.
func (e *Engine) runIdentification(ctx context.Context, draft *models.Draft, imageURL string) (models.Reply, error) {
	draft.Stage = models.StageConfirmIdentity

	if e.identifier == nil {
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgAskLabelPhoto})
	}

	rctx, cancel := context.WithTimeout(ctx, e.identifyTimeout)
	defer cancel()
	start := time.Now()
	result, err := e.identifier.Identify(rctx, imageURL)
	e.recordRun(draft.ID, "identify", imageURL, start, err)

	if err != nil {
		slog.Error("Engine.runIdentification identify failed, degrading to label photo", "draftID", draft.ID, "error", err)
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgAskLabelPhoto})
	}
	if result == nil || result.Title == "" || result.Confidence < e.confidenceThreshold {
		slog.Debug("Engine.runIdentification low confidence", "draftID", draft.ID, "confidence", confidenceOf(result))
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgLowConfidence})
	}

	if err := e.saveIdentification(draft.ID, result); err != nil {
		return models.Reply{}, err
	}
	var alternatives []models.Candidate
	if len(result.Candidates) > 1 {
		alternatives = browsable(result.Candidates[1:])
	}
	p := &models.PendingPrompt{
		Kind: models.PromptConfirmIdentity,
		ConfirmIdentity: &models.ConfirmIdentityPrompt{
			Suggested:    result.Title,
			Alternatives: alternatives,
		},
	}
	draft.Pending = p
	return e.respond(draft, RenderPrompt(p))
}

// saveIdentification persists the proposed identity plus the candidate list
// and variant domains as facts, so step derivation can rebuild the prompt
// from storage alone.
func (e *Engine) saveIdentification(draftID string, result *models.IdentificationResult) error {
	err := e.store.SaveFact(models.Fact{
		DraftID:    draftID,
		Key:        models.FactKeyIdentity,
		Value:      result.Title,
		Confidence: result.Confidence,
		Source:     models.FactSourceCatalog,
		Status:     models.FactStatusProposed,
	})
	if err != nil {
		return fmt.Errorf("failed to save identity fact: %w", err)
	}
	if len(result.Candidates) > 0 {
		b, err := json.Marshal(result.Candidates)
		if err != nil {
			return fmt.Errorf("failed to encode candidates: %w", err)
		}
		err = e.store.SaveFact(models.Fact{
			DraftID:    draftID,
			Key:        models.FactKeyCandidates,
			Value:      string(b),
			Confidence: result.Confidence,
			Source:     models.FactSourceCatalog,
			Status:     models.FactStatusProposed,
		})
		if err != nil {
			return fmt.Errorf("failed to save candidates fact: %w", err)
		}
	}
	b, err := json.Marshal(result.VariantOptions)
	if err != nil {
		return fmt.Errorf("failed to encode variant options: %w", err)
	}
	err = e.store.SaveFact(models.Fact{
		DraftID:    draftID,
		Key:        models.FactKeyVariantOptions,
		Value:      string(b),
		Confidence: result.Confidence,
		Source:     models.FactSourceCatalog,
		Status:     models.FactStatusProposed,
	})
	if err != nil {
		return fmt.Errorf("failed to save variant options fact: %w", err)
	}
	return nil
}

func (e *Engine) handleConfirmIdentity(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	p := pending.ConfirmIdentity
	n := NormalizeBody(body)

	if ParseYes(n) {
		return e.confirmIdentity(ctx, draft, facts, p.Suggested, models.FactSourceUser)
	}

	wantsSimilar := n == ShowSimilar || strings.Contains(n, "similar") || ParseOnlyNo(n)
	if wantsSimilar {
		if len(p.Alternatives) == 0 {
			draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
			return e.respond(draft, models.Reply{Text: msgAskLabelPhoto})
		}
		bp := &models.PendingPrompt{
			Kind:               models.PromptBrowseAlternatives,
			BrowseAlternatives: &models.BrowseAlternativesPrompt{Candidates: p.Alternatives, Index: 0},
		}
		draft.Pending = bp
		return e.respond(draft, RenderPrompt(bp))
	}

	if n == "" {
		draft.Pending = pending
		return e.respond(draft, RenderPrompt(pending))
	}

	// Anything else is a freeform name for the item.
	title := e.resolveName(ctx, draft.ID, body, p.Suggested)
	return e.confirmIdentity(ctx, draft, facts, title, models.FactSourceUser)
}

func (e *Engine) handleBrowse(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	p := pending.BrowseAlternatives
	intent, ok := ParseBrowseIntent(body)
	if !ok {
		draft.Pending = pending
		return e.respond(draft, RenderPrompt(pending))
	}

	switch intent {
	case BrowseThisIsMine:
		chosen := p.Candidates[p.Index]
		for _, img := range chosen.Images {
			if err := e.store.AddPhoto(models.Photo{DraftID: draft.ID, Kind: models.PhotoKindReference, StorageRef: img}); err != nil {
				slog.Error("Engine.handleBrowse failed to register reference photo", "draftID", draft.ID, "error", err)
			}
		}
		return e.confirmIdentity(ctx, draft, facts, chosen.Title, models.FactSourceUser)

	case BrowseNext:
		if p.Index+1 >= len(p.Candidates) {
			// Ran out of candidates: exit browsing to the label-photo ask.
			draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
			return e.respond(draft, models.Reply{Text: msgAskLabelPhoto})
		}
		np := &models.PendingPrompt{
			Kind:               models.PromptBrowseAlternatives,
			BrowseAlternatives: &models.BrowseAlternativesPrompt{Candidates: p.Candidates, Index: p.Index + 1},
		}
		draft.Pending = np
		return e.respond(draft, RenderPrompt(np))

	default: // BrowseNone
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgAskLabelPhoto})
	}
}

func (e *Engine) handleLabelPhoto(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, body string, mediaRefs []string) (models.Reply, error) {
	if len(mediaRefs) > 0 {
		return e.runIdentification(ctx, draft, mediaRefs[0])
	}

	if strings.TrimSpace(body) == "" {
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgAskFreeformName})
	}

	title := e.resolveName(ctx, draft.ID, body, "")
	return e.confirmIdentity(ctx, draft, facts, title, models.FactSourceUser)
}

func (e *Engine) handleChooseVariant(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	p := pending.ChooseVariant
	value, ok := ParseVariantChoice(body, p.Choices)
	if !ok {
		draft.Pending = pending
		return e.respond(draft, RenderPrompt(pending))
	}
	if err := e.store.ConfirmFact(draft.ID, p.Key, value, models.FactSourceUser); err != nil {
		return models.Reply{}, fmt.Errorf("failed to confirm %s: %w", p.Key, err)
	}
	facts[p.Key] = confirmedFact(draft.ID, p.Key, value, models.FactSourceUser)
	return e.advance(draft, facts, models.StageConfirmVariants)
}

func (e *Engine) handleChooseCondition(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	p := pending.ChooseCondition

	var condition string
	switch {
	case ParseYes(body):
		condition = p.Suggested
	default:
		if c, ok := ParseCondition(body); ok {
			condition = c
		} else if ParseOnlyNo(body) {
			draft.Pending = pending
			return e.respond(draft, models.Reply{Text: msgAskCondition, Choices: conditionChoiceOptions()})
		} else {
			draft.Pending = pending
			return e.respond(draft, RenderPrompt(pending))
		}
	}

	if err := e.store.ConfirmFact(draft.ID, models.FactKeyCondition, condition, models.FactSourceUser); err != nil {
		return models.Reply{}, fmt.Errorf("failed to confirm condition: %w", err)
	}
	facts[models.FactKeyCondition] = confirmedFact(draft.ID, models.FactKeyCondition, condition, models.FactSourceUser)
	return e.advance(draft, facts, models.StageConfirmCondition)
}

func (e *Engine) handlePricing(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	switch pending.Pricing.Step {
	case models.PricingStepFloorPrice:
		price, ok := ParseFloorPrice(body)
		if !ok {
			draft.Pending = pending
			return e.respond(draft, RenderPrompt(pending))
		}
		if err := e.store.ConfirmFact(draft.ID, models.FactKeyFloorPrice, price, models.FactSourceUser); err != nil {
			return models.Reply{}, fmt.Errorf("failed to confirm floor price: %w", err)
		}
		facts[models.FactKeyFloorPrice] = confirmedFact(draft.ID, models.FactKeyFloorPrice, price, models.FactSourceUser)
		return e.advance(draft, facts, models.StagePricing)

	default: // price type
		pt, ok := ParsePriceType(body)
		if !ok {
			draft.Pending = pending
			return e.respond(draft, RenderPrompt(pending))
		}
		if err := e.store.ConfirmFact(draft.ID, models.FactKeyPriceType, pt, models.FactSourceUser); err != nil {
			return models.Reply{}, fmt.Errorf("failed to confirm price type: %w", err)
		}
		facts[models.FactKeyPriceType] = confirmedFact(draft.ID, models.FactKeyPriceType, pt, models.FactSourceUser)
		return e.advance(draft, facts, models.StagePricing)
	}
}

func (e *Engine) handleFinalConfirm(draft *models.Draft, facts map[string]models.Fact, pending *models.PendingPrompt, body string) (models.Reply, error) {
	answer, ok := ParseFinalConfirm(body)
	if !ok {
		draft.Pending = pending
		return e.respond(draft, RenderPrompt(pending))
	}
	if !answer {
		draft.Pending = pending
		return e.respond(draft, models.Reply{Text: msgNotYet})
	}
	draft.Status = models.DraftStatusComplete
	draft.Stage = models.StageComplete
	slog.Info("Engine.handleFinalConfirm listing confirmed", "draftID", draft.ID)
	return e.respond(draft, models.Reply{Text: msgListed})
}

// confirmIdentity records the confirmed identity, grounds a condition
// proposal on comparable listings, and advances past identity confirmation.
func (e *Engine) confirmIdentity(ctx context.Context, draft *models.Draft, facts map[string]models.Fact, title, source string) (models.Reply, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		draft.Pending = &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
		return e.respond(draft, models.Reply{Text: msgAskFreeformName})
	}
	if err := e.store.ConfirmFact(draft.ID, models.FactKeyIdentity, title, source); err != nil {
		return models.Reply{}, fmt.Errorf("failed to confirm identity: %w", err)
	}
	facts[models.FactKeyIdentity] = confirmedFact(draft.ID, models.FactKeyIdentity, title, source)

	e.proposeConditionFromComparables(ctx, draft.ID, facts, title)

	return e.advance(draft, facts, models.StageConfirmVariants)
}

// proposeConditionFromComparables searches comparable listings and, when
// they agree on a recognizable condition, stores it as the proposed default.
// Best effort: failures only log.
func (e *Engine) proposeConditionFromComparables(ctx context.Context, draftID string, facts map[string]models.Fact, title string) {
	if e.comparables == nil {
		return
	}
	if _, ok := facts[models.FactKeyCondition]; ok {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, e.identifyTimeout)
	defer cancel()
	start := time.Now()
	comps, err := e.comparables.SearchComparables(rctx, title)
	e.recordRun(draftID, "comparables", title, start, err)
	if err != nil {
		slog.Error("Engine.proposeConditionFromComparables search failed", "draftID", draftID, "error", err)
		return
	}

	counts := make(map[string]int)
	for _, c := range comps {
		if c.Condition == "" {
			continue
		}
		if label, ok := ParseCondition(c.Condition); ok {
			counts[label]++
		}
	}
	var best string
	for _, label := range ConditionChoices {
		if best == "" || counts[label] > counts[best] {
			if counts[label] > 0 {
				best = label
			}
		}
	}
	if best == "" {
		return
	}

	f := models.Fact{
		DraftID:    draftID,
		Key:        models.FactKeyCondition,
		Value:      best,
		Confidence: 0.5,
		Source:     models.FactSourceComparables,
		Status:     models.FactStatusProposed,
	}
	if err := e.store.SaveFact(f); err != nil {
		slog.Error("Engine.proposeConditionFromComparables failed to save proposal", "draftID", draftID, "error", err)
		return
	}
	facts[models.FactKeyCondition] = f
}

// resolveName normalizes a freeform item name through the resolver, passing
// recent conversation turns as context. Falls back to the raw text.
func (e *Engine) resolveName(ctx context.Context, draftID, body, proposed string) string {
	raw := strings.TrimSpace(body)
	if e.resolver == nil {
		return raw
	}
	conversation, err := e.store.GetRecentMessages(draftID, e.contextMessages)
	if err != nil {
		slog.Error("Engine.resolveName failed to load conversation context", "draftID", draftID, "error", err)
		conversation = nil
	}
	rctx, cancel := context.WithTimeout(ctx, e.identifyTimeout)
	defer cancel()
	resolved, err := e.resolver.ResolveFreeform(rctx, raw, proposed, conversation)
	if err != nil {
		slog.Error("Engine.resolveName resolver failed, using raw input", "draftID", draftID, "error", err)
		return raw
	}
	if strings.TrimSpace(resolved) == "" {
		return raw
	}
	return strings.TrimSpace(resolved)
}

// advance derives the next step at or after fromStage and persists it.
func (e *Engine) advance(draft *models.Draft, facts map[string]models.Fact, fromStage models.Stage) (models.Reply, error) {
	step := DeriveStep(fromStage, facts)
	if step.Pending == nil {
		draft.Pending = nil
		return e.respond(draft, step.Reply)
	}
	draft.Pending = step.Pending
	draft.Stage = stageFor(step.Pending.Kind)
	return e.respond(draft, step.Reply)
}

// stageFor maps a prompt kind to the stage that owns it.
func stageFor(kind models.PromptKind) models.Stage {
	switch kind {
	case models.PromptConfirmIdentity, models.PromptBrowseAlternatives, models.PromptAskLabelPhoto:
		return models.StageConfirmIdentity
	case models.PromptChooseVariant:
		return models.StageConfirmVariants
	case models.PromptChooseCondition:
		return models.StageConfirmCondition
	case models.PromptPricing:
		return models.StagePricing
	case models.PromptFinalConfirm:
		return models.StageFinalConfirm
	}
	return models.StageComplete
}

// respond persists the draft (stage, status, pending) and logs the outbound
// message. Facts are already written by the time this runs, so a crash here
// leaves facts ahead of the stage, which derivation tolerates.
func (e *Engine) respond(draft *models.Draft, reply models.Reply) (models.Reply, error) {
	if err := e.store.UpdateDraft(draft); err != nil {
		return models.Reply{}, fmt.Errorf("failed to persist draft: %w", err)
	}
	e.logMessage(draft.ID, models.DirectionOut, reply.Text, nil)
	return reply, nil
}

func (e *Engine) loadFacts(draftID string) (map[string]models.Fact, error) {
	facts, err := e.store.GetFacts(draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to load facts: %w", err)
	}
	return factsByKey(facts), nil
}

func (e *Engine) logMessage(draftID string, dir models.MessageDirection, body string, mediaRefs []string) {
	err := e.store.AddMessage(models.Message{DraftID: draftID, Direction: dir, Body: body, MediaRefs: mediaRefs})
	if err != nil {
		slog.Error("Engine.logMessage failed to record message", "draftID", draftID, "direction", dir, "error", err)
	}
}

func (e *Engine) recordRun(draftID, kind, query string, start time.Time, callErr error) {
	status := "success"
	if callErr != nil {
		status = "error"
		if errors.Is(callErr, context.DeadlineExceeded) {
			status = "timeout"
		}
	}
	run := models.ResearchRun{
		DraftID:    draftID,
		Kind:       kind,
		Query:      query,
		Status:     status,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err := e.store.AddResearchRun(run); err != nil {
		slog.Error("Engine.recordRun failed to record research run", "draftID", draftID, "kind", kind, "error", err)
	}
}

func (e *Engine) lockUser(userID string) func() {
	e.mu.Lock()
	l, ok := e.userLocks[userID]
	if !ok {
		l = &userLock{}
		e.userLocks[userID] = l
	}
	l.refs++
	e.mu.Unlock()
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.userLocks, userID)
		}
		e.mu.Unlock()
	}
}

func confidenceOf(r *models.IdentificationResult) float64 {
	if r == nil {
		return 0
	}
	return r.Confidence
}

func confirmedFact(draftID, key, value, source string) models.Fact {
	return models.Fact{
		DraftID:    draftID,
		Key:        key,
		Value:      value,
		Confidence: 1,
		Source:     source,
		Status:     models.FactStatusConfirmed,
	}
}
