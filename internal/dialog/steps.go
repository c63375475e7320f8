package dialog

import (
	"encoding/json"

	"github.com/snaplist/snaplist/internal/models"
)

// Step is what the conversation expects next: the prompt to await (nil for
// stages that wait on photos or are terminal) and the reply that (re-)asks
// the corresponding question.
type Step struct {
	Pending *models.PendingPrompt
	Reply   models.Reply
}

// variantPriority is the fixed elicitation order for variant keys.
var variantPriority = []string{models.FactKeySize, models.FactKeyColor, models.FactKeyDepartment}

// DeriveStep computes the expected next step purely from the draft stage and
// its facts. It is the single source of truth for "what are we waiting for";
// the persisted pending prompt is only a cache of its output. When a stage's
// question is already answered by a confirmed fact, derivation falls through
// to the next stage's question, so recovery after a lost pending prompt
// never re-asks an answered question.
func DeriveStep(stage models.Stage, facts map[string]models.Fact) Step {
	switch stage {
	case models.StageAwaitingPhotos:
		return Step{Reply: models.Reply{Text: msgNeedPhoto}}

	case models.StageResearchingIdentity, models.StageConfirmIdentity:
		// Research does not persist across turns; finding the draft here
		// means the identify result was lost or never confirmed. Re-derive
		// from the stored candidates when present, otherwise fall back to
		// asking for a label photo.
		if confirmed(facts, models.FactKeyIdentity) {
			return DeriveStep(models.StageConfirmVariants, facts)
		}
		cands := decodeCandidates(facts)
		if len(cands) == 0 {
			return askLabelPhotoStep()
		}
		p := &models.PendingPrompt{
			Kind: models.PromptConfirmIdentity,
			ConfirmIdentity: &models.ConfirmIdentityPrompt{
				Suggested:    cands[0].Title,
				Alternatives: browsable(cands[1:]),
			},
		}
		return Step{Pending: p, Reply: RenderPrompt(p)}

	case models.StageConfirmVariants:
		opts := decodeVariantOptions(facts)
		for _, key := range variantPriority {
			if confirmed(facts, key) {
				continue
			}
			choices := variantDomain(opts, key)
			if len(choices) < 2 {
				continue
			}
			p := &models.PendingPrompt{
				Kind:          models.PromptChooseVariant,
				ChooseVariant: &models.ChooseVariantPrompt{Key: key, Choices: choices},
			}
			return Step{Pending: p, Reply: RenderPrompt(p)}
		}
		return DeriveStep(models.StageConfirmCondition, facts)

	case models.StageConfirmCondition:
		if confirmed(facts, models.FactKeyCondition) {
			return DeriveStep(models.StagePricing, facts)
		}
		suggested := "Used – Good"
		if f, ok := facts[models.FactKeyCondition]; ok && f.Value != "" {
			suggested = f.Value
		}
		p := &models.PendingPrompt{
			Kind:            models.PromptChooseCondition,
			ChooseCondition: &models.ChooseConditionPrompt{Suggested: suggested, Choices: ConditionChoices},
		}
		return Step{Pending: p, Reply: RenderPrompt(p)}

	case models.StagePricing:
		step := models.PricingStepPriceType
		if confirmed(facts, models.FactKeyPriceType) {
			if confirmed(facts, models.FactKeyFloorPrice) {
				return DeriveStep(models.StageFinalConfirm, facts)
			}
			step = models.PricingStepFloorPrice
		}
		p := &models.PendingPrompt{
			Kind:    models.PromptPricing,
			Pricing: &models.PricingPrompt{Step: step},
		}
		return Step{Pending: p, Reply: RenderPrompt(p)}

	case models.StageFinalConfirm:
		p := &models.PendingPrompt{
			Kind:         models.PromptFinalConfirm,
			FinalConfirm: &models.FinalConfirmPrompt{Summary: renderSummary(facts)},
		}
		return Step{Pending: p, Reply: RenderPrompt(p)}

	case models.StageComplete:
		return Step{Reply: models.Reply{Text: msgAlreadyComplete}}
	}
	return Step{Reply: models.Reply{Text: msgSomethingWentWrong}}
}

// RenderPrompt builds the outbound reply that asks a pending prompt's
// question. Re-asking after unparseable input goes through here so the
// repeated question is identical to the original.
func RenderPrompt(p *models.PendingPrompt) models.Reply {
	switch p.Kind {
	case models.PromptConfirmIdentity:
		return models.Reply{Text: confirmIdentityText(p.ConfirmIdentity.Suggested), Choices: identityChoices()}
	case models.PromptBrowseAlternatives:
		c := p.BrowseAlternatives.Candidates[p.BrowseAlternatives.Index]
		return models.Reply{Text: browseCandidateText(c), Choices: browseChoices(c)}
	case models.PromptAskLabelPhoto:
		return models.Reply{Text: msgAskLabelPhoto}
	case models.PromptChooseVariant:
		return models.Reply{
			Text:    variantQuestionText(p.ChooseVariant.Key, p.ChooseVariant.Choices),
			Choices: variantChoiceOptions(p.ChooseVariant.Choices),
		}
	case models.PromptChooseCondition:
		return models.Reply{Text: suggestConditionText(p.ChooseCondition.Suggested), Choices: conditionYesNoChoices()}
	case models.PromptPricing:
		if p.Pricing.Step == models.PricingStepFloorPrice {
			return models.Reply{Text: msgAskFloorPrice}
		}
		return models.Reply{Text: msgAskPriceType, Choices: priceTypeChoices()}
	case models.PromptFinalConfirm:
		return models.Reply{Text: p.FinalConfirm.Summary, Choices: finalConfirmChoices()}
	}
	return models.Reply{Text: msgSomethingWentWrong}
}

func askLabelPhotoStep() Step {
	p := &models.PendingPrompt{Kind: models.PromptAskLabelPhoto}
	return Step{Pending: p, Reply: RenderPrompt(p)}
}

func confirmed(facts map[string]models.Fact, key string) bool {
	f, ok := facts[key]
	return ok && f.Status == models.FactStatusConfirmed
}

// decodeCandidates reads the JSON-encoded candidate list stored as a fact.
// A missing or corrupt value yields nil, which derivation treats as "no
// identification available".
func decodeCandidates(facts map[string]models.Fact) []models.Candidate {
	f, ok := facts[models.FactKeyCandidates]
	if !ok || f.Value == "" {
		return nil
	}
	var cands []models.Candidate
	if err := json.Unmarshal([]byte(f.Value), &cands); err != nil {
		return nil
	}
	return cands
}

func decodeVariantOptions(facts map[string]models.Fact) models.VariantOptions {
	f, ok := facts[models.FactKeyVariantOptions]
	if !ok || f.Value == "" {
		return models.VariantOptions{}
	}
	var opts models.VariantOptions
	if err := json.Unmarshal([]byte(f.Value), &opts); err != nil {
		return models.VariantOptions{}
	}
	return opts
}

func variantDomain(opts models.VariantOptions, key string) []string {
	switch key {
	case models.FactKeySize:
		return opts.Sizes
	case models.FactKeyColor:
		return opts.Colors
	case models.FactKeyDepartment:
		return opts.Departments
	}
	return nil
}

// browsable keeps only candidates that carry at least one image; browsing
// without a picture to show is useless.
func browsable(cands []models.Candidate) []models.Candidate {
	var out []models.Candidate
	for _, c := range cands {
		if len(c.Images) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func factsByKey(facts []models.Fact) map[string]models.Fact {
	m := make(map[string]models.Fact, len(facts))
	for _, f := range facts {
		m[f.Key] = f
	}
	return m
}
