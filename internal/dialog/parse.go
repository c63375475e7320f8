// Package dialog implements the listing intake conversation engine.
//
// It parses inbound messages deterministically, derives the next step from
// persisted draft state, and produces the outbound reply. All branching on
// user text lives in this package; nothing here calls the network except
// through the injected identification and resolver interfaces.
package dialog

import (
	"regexp"
	"strconv"
	"strings"
)

// Affirmation and refusal matchers. These anchor on the start of the
// normalized message so "yes, the blue one" still counts as yes while
// "nothing" does not count as no.
var (
	yesRe    = regexp.MustCompile(`^(yes|yeah|yep|sure|correct|sounds good|that's right|that is right|yup)\b`)
	onlyNoRe = regexp.MustCompile(`^(no|nope|nah|not really)\b`)
	finalYes = regexp.MustCompile(`^(yes|yeah|yep|sure|list|list it|do it)\b`)
	finalNo  = regexp.MustCompile(`^(no|nope|nah|not yet|wait)\b`)
	floorRe  = regexp.MustCompile(`\$?(\d+(?:\.\d{1,2})?)`)
)

// NormalizeBody lowercases and trims an inbound message for matching.
func NormalizeBody(body string) string {
	return strings.ToLower(strings.TrimSpace(body))
}

// IsTrigger reports whether the message starts a new listing. The canonical
// phrase is "i want to sell something"; any message containing both "want"
// and "sell" also counts.
func IsTrigger(body string) bool {
	n := NormalizeBody(body)
	if n == "i want to sell something" {
		return true
	}
	return strings.Contains(n, "want") && strings.Contains(n, "sell")
}

// ParseYes reports whether the message is an affirmation.
func ParseYes(body string) bool {
	return yesRe.MatchString(NormalizeBody(body))
}

// ParseOnlyNo reports whether the message is a plain refusal with no
// replacement value attached.
func ParseOnlyNo(body string) bool {
	return onlyNoRe.MatchString(NormalizeBody(body))
}

// ParseFinalConfirm interprets the final listing confirmation. It returns
// (answer, ok); ok is false when the message is neither a yes nor a no.
func ParseFinalConfirm(body string) (bool, bool) {
	n := NormalizeBody(body)
	if finalYes.MatchString(n) {
		return true, true
	}
	if finalNo.MatchString(n) {
		return false, true
	}
	return false, false
}

// Canonical condition labels, most specific first. Substring matching means
// "new with tags" must be checked before "new", and "like new" before "good"
// has no overlap but the order is still load-bearing for inputs that mention
// several words.
var conditionPatterns = []struct {
	match string
	label string
}{
	{"new with tags", "New with tags"},
	{"new with tag", "New with tags"},
	{"nwt", "New with tags"},
	{"like new", "Used – Like New"},
	{"acceptable", "Used – Acceptable"},
	{"good", "Used – Good"},
}

// ConditionChoices is the full condition taxonomy in display order.
var ConditionChoices = []string{
	"New with tags",
	"Used – Like New",
	"Used – Good",
	"Used – Acceptable",
}

// ParseCondition maps free text to a canonical condition label. The first
// matching pattern wins; an exact canonical label always matches itself.
func ParseCondition(body string) (string, bool) {
	n := NormalizeBody(body)
	for _, c := range ConditionChoices {
		if n == strings.ToLower(c) {
			return c, true
		}
	}
	for _, p := range conditionPatterns {
		if strings.Contains(n, p.match) {
			return p.label, true
		}
	}
	return "", false
}

// Price type values.
const (
	PriceTypeQuickSale = "quick_sale"
	PriceTypeBestPrice = "best_price"
)

// ParsePriceType maps free text to a price type value.
func ParsePriceType(body string) (string, bool) {
	n := NormalizeBody(body)
	switch n {
	case PriceTypeQuickSale, PriceTypeBestPrice:
		return n, true
	}
	if strings.Contains(n, "quick") || strings.Contains(n, "fast") {
		return PriceTypeQuickSale, true
	}
	if strings.Contains(n, "best") || strings.Contains(n, "max") {
		return PriceTypeBestPrice, true
	}
	return "", false
}

// ParseFloorPrice extracts a numeric floor price from text like "25",
// "$25.50", or "around $30 I guess". It returns the normalized numeric
// string without the currency symbol.
func ParseFloorPrice(body string) (string, bool) {
	m := floorRe.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseChoice matches a message against a fixed choice list. A message
// matches by exact value, exact label (case-insensitive), or 1-based index.
// Returns the matched value.
func ParseChoice(body string, labels, values []string) (string, bool) {
	n := NormalizeBody(body)
	for i, v := range values {
		if n == strings.ToLower(v) {
			return v, true
		}
		if i < len(labels) && n == strings.ToLower(labels[i]) {
			return v, true
		}
	}
	if idx, err := strconv.Atoi(n); err == nil && idx >= 1 && idx <= len(values) {
		return values[idx-1], true
	}
	return "", false
}

// ParseVariantChoice matches a message against a variant domain by exact
// case-insensitive value or 1-based index, returning the canonical value.
func ParseVariantChoice(body string, choices []string) (string, bool) {
	n := NormalizeBody(body)
	for _, c := range choices {
		if n == strings.ToLower(c) {
			return c, true
		}
	}
	if idx, err := strconv.Atoi(n); err == nil && idx >= 1 && idx <= len(choices) {
		return choices[idx-1], true
	}
	return "", false
}

// Browse intent values understood while paging through candidates.
const (
	BrowseThisIsMine = "this_is_mine"
	BrowseNext       = "next"
	BrowseNone       = "none"
)

// ParseBrowseIntent interprets a message while browsing alternatives.
func ParseBrowseIntent(body string) (string, bool) {
	n := NormalizeBody(body)
	switch n {
	case BrowseThisIsMine, "this is mine", "this one", "that's it", "that is it", "mine":
		return BrowseThisIsMine, true
	case BrowseNext, "show next", "another", "more", "skip":
		return BrowseNext, true
	case BrowseNone, "none of these", "none of them", "neither":
		return BrowseNone, true
	}
	if ParseYes(n) {
		return BrowseThisIsMine, true
	}
	if ParseOnlyNo(n) {
		return BrowseNext, true
	}
	return "", false
}

// ShowSimilar is the choice value that enters candidate browsing from the
// identity confirmation prompt.
const ShowSimilar = "show_similar"
