package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPendingPromptValidate(t *testing.T) {
	valid := []PendingPrompt{
		{Kind: PromptConfirmIdentity, ConfirmIdentity: &ConfirmIdentityPrompt{Suggested: "Nike Air Force 1"}},
		{Kind: PromptBrowseAlternatives, BrowseAlternatives: &BrowseAlternativesPrompt{Candidates: []Candidate{{Title: "Nike Court Vision"}}}},
		{Kind: PromptAskLabelPhoto},
		{Kind: PromptChooseVariant, ChooseVariant: &ChooseVariantPrompt{Key: "size", Choices: []string{"9", "10"}}},
		{Kind: PromptChooseCondition, ChooseCondition: &ChooseConditionPrompt{Suggested: "Used – Good"}},
		{Kind: PromptPricing, Pricing: &PricingPrompt{Step: PricingStepPriceType}},
		{Kind: PromptFinalConfirm, FinalConfirm: &FinalConfirmPrompt{Summary: "Summary: ..."}},
	}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%s) failed: %v", p.Kind, err)
		}
	}
}

func TestPendingPromptValidateRejectsUnknownKind(t *testing.T) {
	p := PendingPrompt{Kind: "ask_nicely"}
	if err := p.Validate(); !errors.Is(err, ErrInvalidPromptKind) {
		t.Errorf("expected ErrInvalidPromptKind, got %v", err)
	}
}

func TestPendingPromptValidateRejectsMissingPayload(t *testing.T) {
	p := PendingPrompt{Kind: PromptPricing}
	if err := p.Validate(); !errors.Is(err, ErrMissingPromptPayload) {
		t.Errorf("expected ErrMissingPromptPayload, got %v", err)
	}
}

func TestPendingPromptValidateRejectsExtraPayload(t *testing.T) {
	p := PendingPrompt{
		Kind:    PromptPricing,
		Pricing: &PricingPrompt{Step: PricingStepFloorPrice},
		FinalConfirm: &FinalConfirmPrompt{
			Summary: "Summary: ...",
		},
	}
	if err := p.Validate(); !errors.Is(err, ErrExtraPromptPayload) {
		t.Errorf("expected ErrExtraPromptPayload, got %v", err)
	}

	// ask_label_photo carries no payload at all.
	bare := PendingPrompt{
		Kind:            PromptAskLabelPhoto,
		ConfirmIdentity: &ConfirmIdentityPrompt{Suggested: "x"},
	}
	if err := bare.Validate(); !errors.Is(err, ErrExtraPromptPayload) {
		t.Errorf("expected ErrExtraPromptPayload for ask_label_photo payload, got %v", err)
	}
}

func TestPendingPromptJSONRoundTrip(t *testing.T) {
	orig := PendingPrompt{
		Kind: PromptBrowseAlternatives,
		BrowseAlternatives: &BrowseAlternativesPrompt{
			Candidates: []Candidate{
				{Title: "Nike Court Vision", Images: []string{"https://img.example.com/cv.jpg"}},
				{Title: "Nike Blazer Low", Images: []string{"https://img.example.com/bl.jpg"}},
			},
			Index: 1,
		},
	}

	b, err := json.Marshal(&orig)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got PendingPrompt
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("round-tripped prompt invalid: %v", err)
	}
	if got.BrowseAlternatives.Index != 1 || len(got.BrowseAlternatives.Candidates) != 2 {
		t.Errorf("round trip lost state: %+v", got.BrowseAlternatives)
	}
	if got.BrowseAlternatives.Candidates[0].Title != "Nike Court Vision" {
		t.Errorf("candidate title = %q", got.BrowseAlternatives.Candidates[0].Title)
	}
}
