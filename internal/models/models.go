// Package models defines the core data structures for SnapList.
//
// It includes the listing draft aggregate, draft facts, conversation
// messages, and photos, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// DraftStatus represents the lifecycle status of a listing draft.
type DraftStatus string

const (
	// DraftStatusActive indicates the draft is being built.
	DraftStatusActive DraftStatus = "active"
	// DraftStatusComplete indicates the user confirmed the listing.
	DraftStatusComplete DraftStatus = "complete"
	// DraftStatusAbandoned indicates a trigger started a new draft over this one.
	DraftStatusAbandoned DraftStatus = "abandoned"
)

// FactStatus represents the lifecycle status of a draft fact.
type FactStatus string

const (
	// FactStatusProposed indicates the value came from identification or
	// extraction and still needs user confirmation.
	FactStatusProposed FactStatus = "proposed"
	// FactStatusConfirmed indicates the user accepted the value.
	FactStatusConfirmed FactStatus = "confirmed"
	// FactStatusRejected indicates the user declined the value.
	FactStatusRejected FactStatus = "rejected"
)

// MessageDirection indicates whether a message was received or sent.
type MessageDirection string

const (
	// DirectionIn is a message from the user to the assistant.
	DirectionIn MessageDirection = "in"
	// DirectionOut is a message from the assistant to the user.
	DirectionOut MessageDirection = "out"
)

// PhotoKind distinguishes user uploads from catalog reference images.
type PhotoKind string

const (
	// PhotoKindUser is a photo the user sent in.
	PhotoKindUser PhotoKind = "user"
	// PhotoKindReference is a catalog image attached for comparison.
	PhotoKindReference PhotoKind = "reference"
)

// Fact keys used by the dialogue engine. Values are always stored as
// strings; structured values (candidates, variant options) are JSON-encoded.
const (
	FactKeyIdentity       = "identity"
	FactKeySize           = "size"
	FactKeyColor          = "color"
	FactKeyDepartment     = "department"
	FactKeyCondition      = "condition"
	FactKeyPriceType      = "price_type"
	FactKeyFloorPrice     = "floor_price"
	FactKeyDescription    = "description"
	FactKeyCandidates     = "identity_candidates"
	FactKeyVariantOptions = "variant_options"
)

// Fact sources.
const (
	FactSourceCatalog     = "catalog"
	FactSourceComparables = "comparables"
	FactSourceUser        = "user"
	FactSourceResolver    = "resolver"
	FactSourceDefault     = "default"
)

// Error variables shared across modules.
var (
	ErrDraftVersionConflict = errors.New("draft was modified concurrently")
	ErrDraftNotFound        = errors.New("draft not found")
	ErrEmptySender          = errors.New("sender cannot be empty")
)

// User maps a messaging channel identity (phone number, JID) to a stable
// internal ID. The mapping is immutable once created.
type User struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the mutable listing-in-progress aggregate for one user.
// At most one draft per user has status active at any time.
//
// Version implements optimistic concurrency: every write checks and
// increments it, so two instances racing on the same draft cannot
// silently overwrite each other.
type Draft struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Status    DraftStatus    `json:"status"`
	Stage     Stage          `json:"stage"`
	Pending   *PendingPrompt `json:"pending,omitempty"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Fact is one attribute of a draft with a confidence score and a
// proposed/confirmed/rejected lifecycle. Exactly one row exists per
// (draft, key); writes are upserts and confirmation overwrites the value
// and flips the status, never deletes.
type Fact struct {
	DraftID    string     `json:"draft_id"`
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"`
	Status     FactStatus `json:"status"`
	Evidence   string     `json:"evidence,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Message is one conversation turn, stored append-only for context.
type Message struct {
	ID        string           `json:"id"`
	DraftID   string           `json:"draft_id"`
	Direction MessageDirection `json:"direction"`
	Body      string           `json:"body"`
	MediaRefs []string         `json:"media_refs,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Photo is a media reference registered against a draft.
type Photo struct {
	ID         string    `json:"id"`
	DraftID    string    `json:"draft_id"`
	Kind       PhotoKind `json:"kind"`
	StorageRef string    `json:"storage_ref"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResearchRun records one identification or comparables call for auditing.
type ResearchRun struct {
	ID         string    `json:"id"`
	DraftID    string    `json:"draft_id"`
	Kind       string    `json:"kind"` // "identify" or "comparables"
	Query      string    `json:"query"`
	Status     string    `json:"status"` // "success", "timeout", "error", "skipped"
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChoiceOption is a deterministic reply button offered to the user.
// Value is what the channel sends back when the button is tapped; Images
// carries reference image URLs for candidate browsing.
type ChoiceOption struct {
	Label  string   `json:"label"`
	Value  string   `json:"value"`
	Images []string `json:"images,omitempty"`
}

// Reply is the outbound result of handling one inbound message.
type Reply struct {
	Text    string         `json:"text"`
	Choices []ChoiceOption `json:"choices,omitempty"`
}

// InboundMessage is one message received from a messaging channel.
type InboundMessage struct {
	From      string   `json:"from"`
	Body      string   `json:"body"`
	MediaRefs []string `json:"media_refs,omitempty"`
	Time      int64    `json:"time"`
}
