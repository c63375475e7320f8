package dialog

import "testing"

func TestIsTrigger(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"i want to sell something", true},
		{"I WANT TO SELL SOMETHING", true},
		{"  i want to sell something  ", true},
		{"hey, I want to sell my old sneakers", true},
		{"do you want to buy something", false},
		{"selling is fun", false},
		{"hello", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsTrigger(c.body); got != c.want {
			t.Errorf("IsTrigger(%q) = %v, want %v", c.body, got, c.want)
		}
	}
}

func TestParseYes(t *testing.T) {
	yes := []string{"yes", "Yes", "yeah", "yep", "sure", "correct", "sounds good", "that's right", "yup", "yes, the blue one"}
	for _, b := range yes {
		if !ParseYes(b) {
			t.Errorf("ParseYes(%q) = false, want true", b)
		}
	}
	no := []string{"no", "maybe", "nope", "yessir", ""}
	for _, b := range no {
		if ParseYes(b) {
			t.Errorf("ParseYes(%q) = true, want false", b)
		}
	}
}

func TestParseOnlyNo(t *testing.T) {
	if !ParseOnlyNo("no") || !ParseOnlyNo("Nope") || !ParseOnlyNo("not really") {
		t.Error("expected plain refusals to parse as no")
	}
	if ParseOnlyNo("nothing") {
		t.Error("ParseOnlyNo(\"nothing\") = true, want false")
	}
	if ParseOnlyNo("yes") {
		t.Error("ParseOnlyNo(\"yes\") = true, want false")
	}
}

func TestParseFinalConfirm(t *testing.T) {
	cases := []struct {
		body   string
		answer bool
		ok     bool
	}{
		{"yes", true, true},
		{"list it", true, true},
		{"do it", true, true},
		{"not yet", false, true},
		{"wait", false, true},
		{"no", false, true},
		{"hmm", false, false},
		{"", false, false},
	}
	for _, c := range cases {
		answer, ok := ParseFinalConfirm(c.body)
		if answer != c.answer || ok != c.ok {
			t.Errorf("ParseFinalConfirm(%q) = (%v, %v), want (%v, %v)", c.body, answer, ok, c.answer, c.ok)
		}
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{"good", "Used – Good", true},
		{"it's in good shape", "Used – Good", true},
		{"new with tags", "New with tags", true},
		{"nwt", "New with tags", true},
		{"like new", "Used – Like New", true},
		{"acceptable", "Used – Acceptable", true},
		{"Used – Good", "Used – Good", true},
		{"terrible", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseCondition(c.body)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseCondition(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.want, c.ok)
		}
	}
}

func TestParsePriceType(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{"quick sale", PriceTypeQuickSale, true},
		{"quick", PriceTypeQuickSale, true},
		{"fast please", PriceTypeQuickSale, true},
		{"best price", PriceTypeBestPrice, true},
		{"max it out", PriceTypeBestPrice, true},
		{"quick_sale", PriceTypeQuickSale, true},
		{"best_price", PriceTypeBestPrice, true},
		{"whatever", "", false},
	}
	for _, c := range cases {
		got, ok := ParsePriceType(c.body)
		if got != c.want || ok != c.ok {
			t.Errorf("ParsePriceType(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.want, c.ok)
		}
	}
}

func TestParseFloorPrice(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{"25", "25", true},
		{"$25", "25", true},
		{"$25.50", "25.50", true},
		{"around $30 I guess", "30", true},
		{"12.5", "12.5", true},
		{"free", "", false},
		{"no idea", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ParseFloorPrice(c.body)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseFloorPrice(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.want, c.ok)
		}
	}
}

func TestParseVariantChoice(t *testing.T) {
	choices := []string{"9", "10", "11"}
	if got, ok := ParseVariantChoice("10", choices); !ok || got != "10" {
		t.Errorf("exact value match failed: (%q, %v)", got, ok)
	}
	if got, ok := ParseVariantChoice("1", []string{"S", "M", "L"}); !ok || got != "S" {
		t.Errorf("1-based index match failed: (%q, %v)", got, ok)
	}
	if got, ok := ParseVariantChoice("m", []string{"S", "M", "L"}); !ok || got != "M" {
		t.Errorf("case-insensitive match failed: (%q, %v)", got, ok)
	}
	if _, ok := ParseVariantChoice("XL", []string{"S", "M", "L"}); ok {
		t.Error("expected no match for value outside the domain")
	}
	if _, ok := ParseVariantChoice("4", []string{"S", "M", "L"}); ok {
		t.Error("expected no match for out-of-range index")
	}
}

func TestParseBrowseIntent(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{"this is mine", BrowseThisIsMine, true},
		{"this_is_mine", BrowseThisIsMine, true},
		{"yes", BrowseThisIsMine, true},
		{"next", BrowseNext, true},
		{"no", BrowseNext, true},
		{"none of these", BrowseNone, true},
		{"none", BrowseNone, true},
		{"what is this", "", false},
	}
	for _, c := range cases {
		got, ok := ParseBrowseIntent(c.body)
		if got != c.want || ok != c.ok {
			t.Errorf("ParseBrowseIntent(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.want, c.ok)
		}
	}
}
