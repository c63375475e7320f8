package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/snaplist/snaplist/internal/models"
	"github.com/snaplist/snaplist/internal/util"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Connection pool settings for PostgreSQL.
const (
	pgMaxOpenConns    = 25
	pgMaxIdleConns    = 5
	pgConnMaxLifetime = 5 * time.Minute
)

// PostgresStore is a Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store. The DSN is taken
// from options or the DATABASE_DSN environment variable.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_DSN")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	slog.Debug("PostgresStore.NewPostgresStore opening database")

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxLifetime(pgConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	slog.Info("PostgresStore initialized")
	return s, nil
}

func (s *PostgresStore) runMigrations() error {
	if _, err := s.db.Exec(postgresMigrations); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetOrCreateUser(channelID string) (models.User, error) {
	if channelID == "" {
		return models.User{}, models.ErrEmptySender
	}
	u := models.User{ID: util.GenerateUserID(), ChannelID: channelID, CreatedAt: time.Now()}
	// Upsert-then-read keeps concurrent first contacts race-free.
	_, err := s.db.Exec(`INSERT INTO users (id, channel_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO NOTHING`, u.ID, u.ChannelID, u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	err = s.db.QueryRow(`SELECT id, channel_id, created_at FROM users WHERE channel_id = $1`, channelID).
		Scan(&u.ID, &u.ChannelID, &u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to read user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetActiveDraft(userID string) (*models.Draft, error) {
	row := s.db.QueryRow(`SELECT id, user_id, status, stage, pending, version, created_at, updated_at
		FROM listing_drafts WHERE user_id = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`,
		userID, models.DraftStatusActive)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active draft: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) CreateDraft(userID string) (models.Draft, error) {
	d := newDraft(userID)
	_, err := s.db.Exec(`INSERT INTO listing_drafts (id, user_id, status, stage, pending, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7)`,
		d.ID, d.UserID, d.Status, d.Stage, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to insert draft: %w", err)
	}
	slog.Debug("PostgresStore.CreateDraft created draft", "draftID", d.ID, "userID", userID)
	return d, nil
}

func (s *PostgresStore) StartDraft(userID string) (models.Draft, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(`UPDATE listing_drafts SET status = $1, updated_at = $2, version = version + 1
		WHERE user_id = $3 AND status = $4`,
		models.DraftStatusAbandoned, now, userID, models.DraftStatusActive)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to abandon active drafts: %w", err)
	}

	d := newDraft(userID)
	_, err = tx.Exec(`INSERT INTO listing_drafts (id, user_id, status, stage, pending, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7)`,
		d.ID, d.UserID, d.Status, d.Stage, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to insert draft: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Draft{}, fmt.Errorf("failed to commit start draft: %w", err)
	}
	slog.Debug("PostgresStore.StartDraft created draft", "draftID", d.ID, "userID", userID)
	return d, nil
}

func (s *PostgresStore) UpdateDraft(d *models.Draft) error {
	pending, err := marshalPending(d.Pending)
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := s.db.Exec(`UPDATE listing_drafts SET status = $1, stage = $2, pending = $3, version = version + 1, updated_at = $4
		WHERE id = $5 AND version = $6`,
		d.Status, d.Stage, pending, now, d.ID, d.Version)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRow(`SELECT 1 FROM listing_drafts WHERE id = $1`, d.ID).Scan(&exists); err == sql.ErrNoRows {
			return models.ErrDraftNotFound
		}
		return models.ErrDraftVersionConflict
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

func (s *PostgresStore) SaveFact(f models.Fact) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO draft_facts (draft_id, key, value, confidence, source, status, evidence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (draft_id, key) DO UPDATE SET
			value = EXCLUDED.value, confidence = EXCLUDED.confidence, source = EXCLUDED.source,
			status = EXCLUDED.status, evidence = EXCLUDED.evidence, updated_at = EXCLUDED.updated_at`,
		f.DraftID, f.Key, f.Value, f.Confidence, f.Source, f.Status, f.Evidence, now)
	if err != nil {
		return fmt.Errorf("failed to upsert fact %s: %w", f.Key, err)
	}
	return nil
}

func (s *PostgresStore) ConfirmFact(draftID, key, value, source string) error {
	return s.SaveFact(models.Fact{
		DraftID:    draftID,
		Key:        key,
		Value:      value,
		Confidence: 1,
		Source:     source,
		Status:     models.FactStatusConfirmed,
	})
}

func (s *PostgresStore) GetFact(draftID, key string) (*models.Fact, error) {
	var f models.Fact
	err := s.db.QueryRow(`SELECT draft_id, key, value, confidence, source, status, evidence, updated_at
		FROM draft_facts WHERE draft_id = $1 AND key = $2`, draftID, key).
		Scan(&f.DraftID, &f.Key, &f.Value, &f.Confidence, &f.Source, &f.Status, &f.Evidence, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fact %s: %w", key, err)
	}
	return &f, nil
}

func (s *PostgresStore) GetFacts(draftID string) ([]models.Fact, error) {
	rows, err := s.db.Query(`SELECT draft_id, key, value, confidence, source, status, evidence, updated_at
		FROM draft_facts WHERE draft_id = $1 ORDER BY key`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var out []models.Fact
	for rows.Next() {
		var f models.Fact
		if err := rows.Scan(&f.DraftID, &f.Key, &f.Value, &f.Confidence, &f.Source, &f.Status, &f.Evidence, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddMessage(m models.Message) error {
	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO draft_messages (id, draft_id, direction, body, media_refs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.DraftID, m.Direction, m.Body, joinMediaRefs(m.MediaRefs), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecentMessages(draftID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, draft_id, direction, body, media_refs, created_at FROM (
			SELECT * FROM draft_messages WHERE draft_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent ORDER BY created_at ASC, id ASC`, draftID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var refs string
		if err := rows.Scan(&m.ID, &m.DraftID, &m.Direction, &m.Body, &refs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.MediaRefs = splitMediaRefs(refs)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddPhoto(p models.Photo) error {
	if p.ID == "" {
		p.ID = util.GeneratePhotoID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO draft_photos (id, draft_id, kind, storage_ref, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.DraftID, p.Kind, p.StorageRef, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhotos(draftID string, kind models.PhotoKind) ([]models.Photo, error) {
	rows, err := s.db.Query(`SELECT id, draft_id, kind, storage_ref, created_at
		FROM draft_photos WHERE draft_id = $1 AND kind = $2 ORDER BY created_at ASC, id ASC`, draftID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var out []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.DraftID, &p.Kind, &p.StorageRef, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddResearchRun(r models.ResearchRun) error {
	if r.ID == "" {
		r.ID = util.GenerateResearchID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO research_runs (id, draft_id, kind, query, status, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.DraftID, r.Kind, r.Query, r.Status, r.DurationMS, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert research run: %w", err)
	}
	return nil
}
