package path

import "testing"

func TestParseFieldOnly(t *testing.T) {
	p, err := Parse(".user")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p) != 1 || p[0].Field != "user" || len(p[0].Selectors) != 0 {
		t.Fatalf("unexpected path: %+v", p)
	}
}

func TestParseIndexSelector(t *testing.T) {
	p, err := Parse(".user[5]")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p) != 1 || len(p[0].Selectors) != 1 {
		t.Fatalf("unexpected path: %+v", p)
	}
	sel := p[0].Selectors[0]
	if sel.Kind != SelectIndex || sel.Index != 5 {
		t.Fatalf("unexpected selector: %+v", sel)
	}
}

func TestParseIDSelector(t *testing.T) {
	p, err := Parse(`.user#(abc-123)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel := p[0].Selectors[0]
	if sel.Kind != SelectID || sel.ID != "abc-123" {
		t.Fatalf("unexpected selector: %+v", sel)
	}
}

func TestParseIDSelectorWithEscapedCloseParen(t *testing.T) {
	p, err := Parse(`.user#(a\)b)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel := p[0].Selectors[0]
	if sel.ID != "a)b" {
		t.Fatalf("expected unescaped id %q, got %q", "a)b", sel.ID)
	}
}

func TestParseIDSelectorWithEscapedBackslash(t *testing.T) {
	p, err := Parse(`.user#(a\\b)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel := p[0].Selectors[0]
	if sel.ID != `a\b` {
		t.Fatalf("expected unescaped id %q, got %q", `a\b`, sel.ID)
	}
}

func TestParseMultiSegment(t *testing.T) {
	p, err := Parse(".posts[0].comments#(c1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(p))
	}
	if p[0].Field != "posts" || p[0].Selectors[0].Index != 0 {
		t.Fatalf("unexpected first segment: %+v", p[0])
	}
	if p[1].Field != "comments" || p[1].Selectors[0].ID != "c1" {
		t.Fatalf("unexpected second segment: %+v", p[1])
	}
}

func TestParseRejectsMissingLeadingDot(t *testing.T) {
	if _, err := Parse("user"); err == nil {
		t.Fatalf("expected error for missing leading dot")
	}
}

func TestParseRejectsEmptyFieldName(t *testing.T) {
	if _, err := Parse(".."); err == nil {
		t.Fatalf("expected error for empty field name")
	}
}

func TestParseRejectsUnclosedIndex(t *testing.T) {
	if _, err := Parse(".user[5"); err == nil {
		t.Fatalf("expected error for unclosed '['")
	}
}

func TestParseRejectsNonNumericIndex(t *testing.T) {
	if _, err := Parse(".user[abc]"); err == nil {
		t.Fatalf("expected error for non-numeric index")
	}
}

func TestParseRejectsUnclosedIDSelector(t *testing.T) {
	if _, err := Parse(".user#(abc"); err == nil {
		t.Fatalf("expected error for unclosed '#('")
	}
}

func TestFormatRoundTrip(t *testing.T) {
	cases := []string{
		".user",
		".user[5]",
		".user#(abc-123)",
		".posts[0].comments#(c1)",
	}
	for _, s := range cases {
		p, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := Format(p); got != s {
			t.Fatalf("Format(Parse(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestFormatEscapesSpecialCharsInID(t *testing.T) {
	p := Field("user").WithID(`a)b\c`)
	formatted := Format(p)
	back, err := Parse(formatted)
	if err != nil {
		t.Fatalf("Parse(%q): %v", formatted, err)
	}
	if back[0].Selectors[0].ID != `a)b\c` {
		t.Fatalf("round trip failed: got %q", back[0].Selectors[0].ID)
	}
}

func TestBuilderHelpers(t *testing.T) {
	p := Field("user").WithIndex(2).WithID("x")
	if len(p) != 1 {
		t.Fatalf("expected single segment, got %d", len(p))
	}
	if len(p[0].Selectors) != 2 {
		t.Fatalf("expected 2 selectors, got %d", len(p[0].Selectors))
	}
	if p.String() != ".user[2]#(x)" {
		t.Fatalf("unexpected string form: %q", p.String())
	}
}

func TestWithIndexDoesNotMutateOriginal(t *testing.T) {
	base := Field("user")
	derived := base.WithIndex(1)
	if len(base[0].Selectors) != 0 {
		t.Fatalf("expected base path to remain unmodified, got %+v", base[0].Selectors)
	}
	if len(derived[0].Selectors) != 1 {
		t.Fatalf("expected derived path to carry the new selector")
	}
}
