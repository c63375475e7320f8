package dialog

import (
	"fmt"
	"strings"

	"github.com/snaplist/snaplist/internal/models"
)

// Outbound reply text. These strings are the conversational contract; tests
// assert on them, so changes here are user-visible behavior changes.
const (
	msgSendPhotosToStart  = "Send at least one photo of the item to get started."
	msgNeedPhoto          = "Please send at least one photo of the item."
	msgAskLabelPhoto      = "Can you send a photo of the label or tag? Or tell me what you'd call this item."
	msgLowConfidence      = "I couldn't identify this with much confidence. Can you send a photo of the label or tag? Or tell me what you'd call it."
	msgAskFreeformName    = "What would you call this item? (e.g. Air Jordan 1 Lows, vintage jacket)"
	msgAskCondition       = "Got it — what condition should I use? (New with tags / Used – Like New / Used – Good / Used – Acceptable)"
	msgAskPriceType       = "Quick sale or best price?"
	msgAskFloorPrice      = "What's your absolute floor price? (e.g. 25 or $25)"
	msgListed             = "You're all set. We'll be in touch."
	msgNotYet             = "No problem — say when you're ready to list."
	msgAlreadyComplete    = "You're all set. Text \"i want to sell something\" to start a new listing."
	msgNoActiveDraft      = "Hi! Text \"i want to sell something\" when you're ready to list an item."
	msgSomethingWentWrong = "Something went wrong — please try again."
)

func confirmIdentityText(title string) string {
	return fmt.Sprintf("Is this a %s?", title)
}

func suggestConditionText(condition string) string {
	return fmt.Sprintf("I'd list the condition as '%s'. Does that sound right?", condition)
}

func variantQuestionText(key string, choices []string) string {
	return fmt.Sprintf("Which %s is it? (%s)", key, strings.Join(choices, " / "))
}

func browseCandidateText(c models.Candidate) string {
	return fmt.Sprintf("How about this one: %s?", c.Title)
}

// Choice sets attached to replies so channels with buttons can render them.
func identityChoices() []models.ChoiceOption {
	return []models.ChoiceOption{
		{Label: "Yes", Value: "yes"},
		{Label: "Show similar", Value: ShowSimilar},
	}
}

func browseChoices(c models.Candidate) []models.ChoiceOption {
	return []models.ChoiceOption{
		{Label: "This is mine", Value: BrowseThisIsMine, Images: c.Images},
		{Label: "Next", Value: BrowseNext},
		{Label: "None of these", Value: BrowseNone},
	}
}

func variantChoiceOptions(choices []string) []models.ChoiceOption {
	out := make([]models.ChoiceOption, 0, len(choices))
	for _, c := range choices {
		out = append(out, models.ChoiceOption{Label: c, Value: c})
	}
	return out
}

func conditionYesNoChoices() []models.ChoiceOption {
	return []models.ChoiceOption{
		{Label: "Yes", Value: "yes"},
		{Label: "No", Value: "no"},
	}
}

func conditionChoiceOptions() []models.ChoiceOption {
	return variantChoiceOptions(ConditionChoices)
}

func priceTypeChoices() []models.ChoiceOption {
	return []models.ChoiceOption{
		{Label: "Quick sale", Value: PriceTypeQuickSale},
		{Label: "Best price", Value: PriceTypeBestPrice},
	}
}

func finalConfirmChoices() []models.ChoiceOption {
	return []models.ChoiceOption{
		{Label: "List it", Value: "yes"},
		{Label: "Not yet", Value: "no"},
	}
}

// renderSummary builds the final confirmation line from confirmed facts.
// Unknown attributes render as a dash rather than being omitted, so the user
// sees exactly which slots the listing will carry.
func renderSummary(facts map[string]models.Fact) string {
	get := func(key string) string {
		if f, ok := facts[key]; ok && f.Status == models.FactStatusConfirmed && f.Value != "" {
			return f.Value
		}
		return "—"
	}
	return fmt.Sprintf("Summary: %s | Size: %s | Condition: %s | Floor: $%s. List it? (yes / not yet)",
		get(models.FactKeyIdentity), get(models.FactKeySize), get(models.FactKeyCondition), get(models.FactKeyFloorPrice))
}
