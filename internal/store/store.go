// Package store provides storage backends for SnapList.
//
// It includes an in-memory store for tests and SQLite/PostgreSQL backends
// for durable draft, fact, message, and photo persistence. All cross-turn
// dialogue state lives here, never in process memory.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/snaplist/snaplist/internal/models"
	"github.com/snaplist/snaplist/internal/util"
)

// Store is the durable persistence contract used by the dialogue engine.
type Store interface {
	// GetOrCreateUser resolves a channel identity to a user, creating the
	// mapping on first contact.
	GetOrCreateUser(channelID string) (models.User, error)

	// GetActiveDraft returns the user's active draft, or nil if none.
	GetActiveDraft(userID string) (*models.Draft, error)
	// CreateDraft inserts a fresh active draft at the awaiting_photos stage.
	CreateDraft(userID string) (models.Draft, error)
	// StartDraft abandons any active drafts for the user and creates a fresh
	// one as a single atomic step, so firing the trigger twice in quick
	// succession still yields exactly one active draft.
	StartDraft(userID string) (models.Draft, error)
	// UpdateDraft persists stage, status, and pending prompt. The write is
	// conditional on d.Version matching the stored row; on success the
	// stored version is incremented. A mismatch returns
	// models.ErrDraftVersionConflict.
	UpdateDraft(d *models.Draft) error

	// SaveFact upserts a fact by (draft, key).
	SaveFact(f models.Fact) error
	// ConfirmFact upserts a fact as confirmed with the given value.
	ConfirmFact(draftID, key, value, source string) error
	// GetFact returns the fact for (draft, key), or nil if absent.
	GetFact(draftID, key string) (*models.Fact, error)
	// GetFacts returns all facts for a draft.
	GetFacts(draftID string) ([]models.Fact, error)

	// AddMessage appends a conversation message.
	AddMessage(m models.Message) error
	// GetRecentMessages returns the most recent messages, oldest first.
	GetRecentMessages(draftID string, limit int) ([]models.Message, error)

	// AddPhoto registers a photo against a draft.
	AddPhoto(p models.Photo) error
	// GetPhotos returns photos of a kind for a draft, oldest first.
	GetPhotos(draftID string, kind models.PhotoKind) ([]models.Photo, error)

	// AddResearchRun records an identification/comparables call (best effort).
	AddResearchRun(r models.ResearchRun) error

	// Close releases the underlying resources.
	Close() error
}

// InMemoryStore is a mutex-protected in-memory Store used by tests and as a
// fallback when no database DSN is configured.
type InMemoryStore struct {
	mu           sync.Mutex
	usersByChan  map[string]models.User
	drafts       map[string]*models.Draft
	facts        map[string]map[string]models.Fact // draftID -> key -> fact
	messages     map[string][]models.Message
	photos       map[string][]models.Photo
	researchRuns map[string][]models.ResearchRun
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		usersByChan:  make(map[string]models.User),
		drafts:       make(map[string]*models.Draft),
		facts:        make(map[string]map[string]models.Fact),
		messages:     make(map[string][]models.Message),
		photos:       make(map[string][]models.Photo),
		researchRuns: make(map[string][]models.ResearchRun),
	}
}

func (s *InMemoryStore) GetOrCreateUser(channelID string) (models.User, error) {
	if channelID == "" {
		return models.User{}, models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.usersByChan[channelID]; ok {
		return u, nil
	}
	u := models.User{ID: util.GenerateUserID(), ChannelID: channelID, CreatedAt: time.Now()}
	s.usersByChan[channelID] = u
	return u, nil
}

func (s *InMemoryStore) GetActiveDraft(userID string) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Draft
	for _, d := range s.drafts {
		if d.UserID == userID && d.Status == models.DraftStatusActive {
			if latest == nil || d.UpdatedAt.After(latest.UpdatedAt) {
				latest = d
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) CreateDraft(userID string) (models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDraftLocked(userID), nil
}

func (s *InMemoryStore) StartDraft(userID string) (models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, d := range s.drafts {
		if d.UserID == userID && d.Status == models.DraftStatusActive {
			d.Status = models.DraftStatusAbandoned
			d.UpdatedAt = now
			d.Version++
		}
	}
	return s.createDraftLocked(userID), nil
}

func (s *InMemoryStore) createDraftLocked(userID string) models.Draft {
	now := time.Now()
	d := models.Draft{
		ID:        util.GenerateDraftID(),
		UserID:    userID,
		Status:    models.DraftStatusActive,
		Stage:     models.StageAwaitingPhotos,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cp := d
	s.drafts[d.ID] = &cp
	return d
}

func (s *InMemoryStore) UpdateDraft(d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.drafts[d.ID]
	if !ok {
		return models.ErrDraftNotFound
	}
	if stored.Version != d.Version {
		return models.ErrDraftVersionConflict
	}
	d.Version++
	d.UpdatedAt = time.Now()
	cp := *d
	s.drafts[d.ID] = &cp
	return nil
}

func (s *InMemoryStore) SaveFact(f models.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.facts[f.DraftID] == nil {
		s.facts[f.DraftID] = make(map[string]models.Fact)
	}
	f.UpdatedAt = time.Now()
	s.facts[f.DraftID][f.Key] = f
	return nil
}

func (s *InMemoryStore) ConfirmFact(draftID, key, value, source string) error {
	return s.SaveFact(models.Fact{
		DraftID:    draftID,
		Key:        key,
		Value:      value,
		Confidence: 1,
		Source:     source,
		Status:     models.FactStatusConfirmed,
	})
}

func (s *InMemoryStore) GetFact(draftID, key string) (*models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.facts[draftID][key]; ok {
		cp := f
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) GetFacts(draftID string) ([]models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Fact
	for _, f := range s.facts[draftID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *InMemoryStore) AddMessage(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.messages[m.DraftID] = append(s.messages[m.DraftID], m)
	return nil
}

func (s *InMemoryStore) GetRecentMessages(draftID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[draftID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) AddPhoto(p models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = util.GeneratePhotoID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.photos[p.DraftID] = append(s.photos[p.DraftID], p)
	return nil
}

func (s *InMemoryStore) GetPhotos(draftID string, kind models.PhotoKind) ([]models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Photo
	for _, p := range s.photos[draftID] {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddResearchRun(r models.ResearchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = util.GenerateResearchID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.researchRuns[r.DraftID] = append(s.researchRuns[r.DraftID], r)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
