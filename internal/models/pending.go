// Package models defines the pending prompt tagged union.
//
// A PendingPrompt records exactly what response shape the dialogue engine
// expects next. It is a persisted cache of the step-derivation function's
// output, never a second source of truth: when it is absent the engine
// re-derives the step from (stage, facts).
package models

import "errors"

// PromptKind identifies the variant of a PendingPrompt.
type PromptKind string

const (
	// PromptConfirmIdentity asks "is this an X?" with yes/show-similar choices.
	PromptConfirmIdentity PromptKind = "confirm_identity"
	// PromptBrowseAlternatives pages through image-bearing candidates.
	PromptBrowseAlternatives PromptKind = "browse_alternatives"
	// PromptAskLabelPhoto requests a photo of the label or tag.
	PromptAskLabelPhoto PromptKind = "ask_label_photo"
	// PromptChooseVariant asks a single-choice question for one variant key.
	PromptChooseVariant PromptKind = "choose_variant"
	// PromptChooseCondition offers a suggested condition as yes/no.
	PromptChooseCondition PromptKind = "choose_condition"
	// PromptPricing covers the two sequential pricing sub-steps.
	PromptPricing PromptKind = "pricing"
	// PromptFinalConfirm shows the summary with list-it/not-yet choices.
	PromptFinalConfirm PromptKind = "final_confirm"
)

// PricingStep is the sub-step within the pricing prompt.
type PricingStep string

const (
	PricingStepPriceType  PricingStep = "price_type"
	PricingStepFloorPrice PricingStep = "floor_price"
)

// Validation errors for pending prompts.
var (
	ErrInvalidPromptKind   = errors.New("invalid pending prompt kind")
	ErrMissingPromptPayload = errors.New("pending prompt payload missing for kind")
	ErrExtraPromptPayload   = errors.New("pending prompt carries payload for another kind")
)

// Candidate is one ranked identification candidate.
type Candidate struct {
	Title  string   `json:"title"`
	Images []string `json:"images,omitempty"`
}

// ConfirmIdentityPrompt carries the suggested identity and the remaining
// alternatives available for browsing.
type ConfirmIdentityPrompt struct {
	Suggested    string      `json:"suggested"`
	Alternatives []Candidate `json:"alternatives,omitempty"`
}

// BrowseAlternativesPrompt is the nested browsing sub-machine state: the
// image-bearing candidate list (primary excluded) and the current index.
type BrowseAlternativesPrompt struct {
	Candidates []Candidate `json:"candidates"`
	Index      int         `json:"index"`
}

// ChooseVariantPrompt asks for one variant key with a fixed choice list.
type ChooseVariantPrompt struct {
	Key     string   `json:"key"`
	Choices []string `json:"choices"`
}

// ChooseConditionPrompt offers a suggested condition plus the full taxonomy.
type ChooseConditionPrompt struct {
	Suggested string   `json:"suggested"`
	Choices   []string `json:"choices"`
}

// PricingPrompt tracks which pricing sub-step is awaited.
type PricingPrompt struct {
	Step PricingStep `json:"step"`
}

// FinalConfirmPrompt carries the rendered summary shown to the user.
type FinalConfirmPrompt struct {
	Summary string `json:"summary"`
}

// PendingPrompt is a closed tagged union. Exactly the payload field matching
// Kind is set; kinds without payload (ask_label_photo) set none.
type PendingPrompt struct {
	Kind PromptKind `json:"kind"`

	ConfirmIdentity    *ConfirmIdentityPrompt    `json:"confirm_identity,omitempty"`
	BrowseAlternatives *BrowseAlternativesPrompt `json:"browse_alternatives,omitempty"`
	ChooseVariant      *ChooseVariantPrompt      `json:"choose_variant,omitempty"`
	ChooseCondition    *ChooseConditionPrompt    `json:"choose_condition,omitempty"`
	Pricing            *PricingPrompt            `json:"pricing,omitempty"`
	FinalConfirm       *FinalConfirmPrompt       `json:"final_confirm,omitempty"`
}

// IsValidPromptKind checks if the given prompt kind is supported.
func IsValidPromptKind(k PromptKind) bool {
	switch k {
	case PromptConfirmIdentity, PromptBrowseAlternatives, PromptAskLabelPhoto,
		PromptChooseVariant, PromptChooseCondition, PromptPricing, PromptFinalConfirm:
		return true
	default:
		return false
	}
}

// Validate checks that the union carries exactly the payload for its kind.
func (p *PendingPrompt) Validate() error {
	if !IsValidPromptKind(p.Kind) {
		return ErrInvalidPromptKind
	}

	payloads := map[PromptKind]bool{
		PromptConfirmIdentity:    p.ConfirmIdentity != nil,
		PromptBrowseAlternatives: p.BrowseAlternatives != nil,
		PromptChooseVariant:      p.ChooseVariant != nil,
		PromptChooseCondition:    p.ChooseCondition != nil,
		PromptPricing:            p.Pricing != nil,
		PromptFinalConfirm:       p.FinalConfirm != nil,
	}

	for kind, set := range payloads {
		if kind == p.Kind {
			if !set {
				return ErrMissingPromptPayload
			}
		} else if set {
			return ErrExtraPromptPayload
		}
	}
	return nil
}

// IdentificationResult is the normalized output of the identification
// pipeline for one photo.
type IdentificationResult struct {
	Title          string         `json:"title"`
	Brand          string         `json:"brand,omitempty"`
	Category       string         `json:"category,omitempty"`
	Confidence     float64        `json:"confidence"`
	VariantOptions VariantOptions `json:"variant_options"`
	Images         []string       `json:"images,omitempty"`
	// Candidates are ranked, deduplicated by title (case-insensitive),
	// provider order preserved. The primary candidate is first.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// VariantOptions are the constrained variant domains reported by the
// catalog, keyed by the fixed elicitation priority order.
type VariantOptions struct {
	Sizes       []string `json:"sizes,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Departments []string `json:"departments,omitempty"`
}

// Comparable is one marketplace listing used to ground condition and
// description defaults. Never authoritative.
type Comparable struct {
	Title     string `json:"title"`
	Condition string `json:"condition,omitempty"`
	Price     string `json:"price,omitempty"`
}
