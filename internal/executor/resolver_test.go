package executor

import (
	"testing"

	"github.com/webprobe/webprobe/internal/domain"
)

func strategies(alts []SelectorAlternative) []string {
	out := make([]string, len(alts))
	for i, a := range alts {
		out[i] = a.Strategy
	}
	return out
}

func findAlt(alts []SelectorAlternative, strategy string) *SelectorAlternative {
	for i := range alts {
		if alts[i].Strategy == strategy {
			return &alts[i]
		}
	}
	return nil
}

func TestDeriveAlternatives_IDOnly(t *testing.T) {
	alts := DeriveAlternatives("form.login button#submit", domain.ActionClick)
	alt := findAlt(alts, "id_only")
	if alt == nil {
		t.Fatalf("no id_only alternative in %v", strategies(alts))
	}
	if alt.Selector != "#submit" {
		t.Errorf("id_only selector = %q, want #submit", alt.Selector)
	}
}

func TestDeriveAlternatives_Attributes(t *testing.T) {
	alts := DeriveAlternatives(`div.form input[name="email"]`, domain.ActionFill)
	alt := findAlt(alts, "name")
	if alt == nil || alt.Selector != `[name="email"]` {
		t.Fatalf("name alternative = %+v", alt)
	}

	alts = DeriveAlternatives(`input[placeholder='Search here']`, domain.ActionFill)
	alt = findAlt(alts, "placeholder")
	if alt == nil || alt.Selector != `[placeholder="Search here"]` {
		t.Fatalf("placeholder alternative = %+v", alt)
	}

	alts = DeriveAlternatives(`button[aria-label="Close dialog"]`, domain.ActionClick)
	alt = findAlt(alts, "aria_label")
	if alt == nil || alt.Selector != `[aria-label="Close dialog"]` {
		t.Fatalf("aria-label alternative = %+v", alt)
	}
}

func TestDeriveAlternatives_HasTextLiftedOnlyForClickHover(t *testing.T) {
	original := `button:has-text("Save changes")`

	if alt := findAlt(DeriveAlternatives(original, domain.ActionClick), "has_text_lifted"); alt == nil {
		t.Error("click should lift has-text to a text selector")
	} else if alt.Selector != "text=Save changes" {
		t.Errorf("lifted selector = %q", alt.Selector)
	}

	if alt := findAlt(DeriveAlternatives(original, domain.ActionFill), "has_text_lifted"); alt != nil {
		t.Error("fill must not lift has-text")
	}
}

func TestDeriveAlternatives_RelaxedCSS(t *testing.T) {
	alts := DeriveAlternatives("ul.menu li:nth-child(3) a.item", domain.ActionClick)
	alt := findAlt(alts, "relaxed_css")
	if alt == nil {
		t.Fatalf("no relaxed_css alternative in %v", strategies(alts))
	}
	if alt.Selector != "ul.menu li a.item" {
		t.Errorf("relaxed selector = %q", alt.Selector)
	}
}

func TestDeriveAlternatives_DeepChainTrimmed(t *testing.T) {
	alts := DeriveAlternatives("html body div.wrap main section form input.field", domain.ActionFill)
	alt := findAlt(alts, "relaxed_css")
	if alt == nil {
		t.Fatal("expected relaxed_css alternative")
	}
	if alt.Selector != "form input.field" {
		t.Errorf("trimmed selector = %q, want last two segments", alt.Selector)
	}
}

func TestDeriveAlternatives_NoUselessAlternatives(t *testing.T) {
	// A bare id selector derives nothing new.
	alts := DeriveAlternatives("#submit", domain.ActionClick)
	if len(alts) != 0 {
		t.Errorf("expected no alternatives for #submit, got %v", strategies(alts))
	}
}
