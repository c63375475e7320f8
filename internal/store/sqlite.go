package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/snaplist/snaplist/internal/models"
	"github.com/snaplist/snaplist/internal/util"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store. The DSN is taken from
// options or the DATABASE_DSN environment variable, defaulting to
// snaplist.db in the current directory.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_DSN")
	}
	if cfg.DSN == "" {
		cfg.DSN = "snaplist.db"
	}
	slog.Debug("SQLiteStore.NewSQLiteStore opening database", "dsn", cfg.DSN)

	if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run sqlite migrations: %w", err)
	}
	slog.Info("SQLiteStore initialized", "dsn", cfg.DSN)
	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec(sqliteMigrations); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetOrCreateUser(channelID string) (models.User, error) {
	if channelID == "" {
		return models.User{}, models.ErrEmptySender
	}
	var u models.User
	err := s.db.QueryRow(`SELECT id, channel_id, created_at FROM users WHERE channel_id = ?`, channelID).
		Scan(&u.ID, &u.ChannelID, &u.CreatedAt)
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}

	u = models.User{ID: util.GenerateUserID(), ChannelID: channelID, CreatedAt: time.Now()}
	_, err = s.db.Exec(`INSERT INTO users (id, channel_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO NOTHING`, u.ID, u.ChannelID, u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	// Re-read in case a concurrent insert won the conflict.
	err = s.db.QueryRow(`SELECT id, channel_id, created_at FROM users WHERE channel_id = ?`, channelID).
		Scan(&u.ID, &u.ChannelID, &u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to re-read user: %w", err)
	}
	slog.Debug("SQLiteStore.GetOrCreateUser created user", "userID", u.ID)
	return u, nil
}

func (s *SQLiteStore) GetActiveDraft(userID string) (*models.Draft, error) {
	row := s.db.QueryRow(`SELECT id, user_id, status, stage, pending, version, created_at, updated_at
		FROM listing_drafts WHERE user_id = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`,
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

func (s *SQLiteStore) CreateDraft(userID string) (models.Draft, error) {
	d := newDraft(userID)
	_, err := s.db.Exec(`INSERT INTO listing_drafts (id, user_id, status, stage, pending, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		d.ID, d.UserID, d.Status, d.Stage, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to insert draft: %w", err)
	}
	slog.Debug("SQLiteStore.CreateDraft created draft", "draftID", d.ID, "userID", userID)
	return d, nil
}

func (s *SQLiteStore) StartDraft(userID string) (models.Draft, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(`UPDATE listing_drafts SET status = ?, updated_at = ?, version = version + 1
		WHERE user_id = ? AND status = ?`,
		models.DraftStatusAbandoned, now, userID, models.DraftStatusActive)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to abandon active drafts: %w", err)
	}

	d := newDraft(userID)
	_, err = tx.Exec(`INSERT INTO listing_drafts (id, user_id, status, stage, pending, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		d.ID, d.UserID, d.Status, d.Stage, d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return models.Draft{}, fmt.Errorf("failed to insert draft: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Draft{}, fmt.Errorf("failed to commit start draft: %w", err)
	}
	slog.Debug("SQLiteStore.StartDraft created draft", "draftID", d.ID, "userID", userID)
	return d, nil
}

func (s *SQLiteStore) UpdateDraft(d *models.Draft) error {
	pending, err := marshalPending(d.Pending)
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := s.db.Exec(`UPDATE listing_drafts SET status = ?, stage = ?, pending = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
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
		if err := s.db.QueryRow(`SELECT 1 FROM listing_drafts WHERE id = ?`, d.ID).Scan(&exists); err == sql.ErrNoRows {
			return models.ErrDraftNotFound
		}
		return models.ErrDraftVersionConflict
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) SaveFact(f models.Fact) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO draft_facts (draft_id, key, value, confidence, source, status, evidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(draft_id, key) DO UPDATE SET
			value = excluded.value, confidence = excluded.confidence, source = excluded.source,
			status = excluded.status, evidence = excluded.evidence, updated_at = excluded.updated_at`,
		f.DraftID, f.Key, f.Value, f.Confidence, f.Source, f.Status, f.Evidence, now)
	if err != nil {
		return fmt.Errorf("failed to upsert fact %s: %w", f.Key, err)
	}
	return nil
}

func (s *SQLiteStore) ConfirmFact(draftID, key, value, source string) error {
	return s.SaveFact(models.Fact{
		DraftID:    draftID,
		Key:        key,
		Value:      value,
		Confidence: 1,
		Source:     source,
		Status:     models.FactStatusConfirmed,
	})
}

func (s *SQLiteStore) GetFact(draftID, key string) (*models.Fact, error) {
	var f models.Fact
	err := s.db.QueryRow(`SELECT draft_id, key, value, confidence, source, status, evidence, updated_at
		FROM draft_facts WHERE draft_id = ? AND key = ?`, draftID, key).
		Scan(&f.DraftID, &f.Key, &f.Value, &f.Confidence, &f.Source, &f.Status, &f.Evidence, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fact %s: %w", key, err)
	}
	return &f, nil
}

func (s *SQLiteStore) GetFacts(draftID string) ([]models.Fact, error) {
	rows, err := s.db.Query(`SELECT draft_id, key, value, confidence, source, status, evidence, updated_at
		FROM draft_facts WHERE draft_id = ? ORDER BY key`, draftID)
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

func (s *SQLiteStore) AddMessage(m models.Message) error {
	if m.ID == "" {
		m.ID = util.GenerateMessageID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO draft_messages (id, draft_id, direction, body, media_refs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.DraftID, m.Direction, m.Body, joinMediaRefs(m.MediaRefs), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecentMessages(draftID string, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`SELECT id, draft_id, direction, body, media_refs, created_at
		FROM (SELECT * FROM draft_messages WHERE draft_id = ? ORDER BY created_at DESC, id DESC LIMIT ?)
		ORDER BY created_at ASC, id ASC`, draftID, limit)
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

func (s *SQLiteStore) AddPhoto(p models.Photo) error {
	if p.ID == "" {
		p.ID = util.GeneratePhotoID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO draft_photos (id, draft_id, kind, storage_ref, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.DraftID, p.Kind, p.StorageRef, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPhotos(draftID string, kind models.PhotoKind) ([]models.Photo, error) {
	rows, err := s.db.Query(`SELECT id, draft_id, kind, storage_ref, created_at
		FROM draft_photos WHERE draft_id = ? AND kind = ? ORDER BY created_at ASC, id ASC`, draftID, kind)
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

func (s *SQLiteStore) AddResearchRun(r models.ResearchRun) error {
	if r.ID == "" {
		r.ID = util.GenerateResearchID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO research_runs (id, draft_id, kind, query, status, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DraftID, r.Kind, r.Query, r.Status, r.DurationMS, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert research run: %w", err)
	}
	return nil
}

// newDraft builds a fresh active draft at the first stage.
func newDraft(userID string) models.Draft {
	now := time.Now()
	return models.Draft{
		ID:        util.GenerateDraftID(),
		UserID:    userID,
		Status:    models.DraftStatusActive,
		Stage:     models.StageAwaitingPhotos,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// rowScanner abstracts *sql.Row and *sql.Rows for draft scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (*models.Draft, error) {
	var d models.Draft
	var pending sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.Status, &d.Stage, &pending, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if pending.Valid && pending.String != "" {
		var p models.PendingPrompt
		if err := json.Unmarshal([]byte(pending.String), &p); err != nil {
			// A corrupt pending prompt degrades to stage derivation.
			slog.Error("scanDraft: failed to decode pending prompt, dropping it", "draftID", d.ID, "error", err)
		} else {
			d.Pending = &p
		}
	}
	return &d, nil
}

func marshalPending(p *models.PendingPrompt) (any, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending prompt: %w", err)
	}
	return string(b), nil
}

// Media refs are stored newline-joined; refs are URLs or storage keys and
// never contain newlines.
func joinMediaRefs(refs []string) string {
	return strings.Join(refs, "\n")
}

func splitMediaRefs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
