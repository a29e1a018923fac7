package article

import (
	"context"
	"testing"

	"anonpress.org/internal/alias"
)

func maskedFixture(t *testing.T) (Service, Article) {
	t.Helper()
	s := NewInMemory()
	ctx := context.Background()
	a, err := s.Create(ctx, testDraft(), "tester", ModeSingle)
	if err != nil {
		t.Fatal(err)
	}
	a, err = s.SetAutoAnonymization(ctx, "sport", a.ObjectID,
		"The ORG_0 is said to meet in LOC_0 according to PER_0.",
		[]alias.Alias{
			{Text: "UN", Alias: "ORG_0", AliasType: "ORG"},
			{Text: "New-York", Alias: "LOC_0", AliasType: "LOC"},
			{Text: "Donald Trump", Alias: "PER_0", AliasType: "PER"},
		}, "corrector")
	if err != nil {
		t.Fatal(err)
	}
	a, err = s.SetManualAnonymization(ctx, "sport", a.ObjectID,
		"The ORG_0 meets in LOC_0.",
		[]alias.Alias{{Text: "UN", Alias: "ORG_0", AliasType: "ORG"}}, "corrector")
	if err != nil {
		t.Fatal(err)
	}
	return s, a
}

func TestMaskedHidesRawTextFromPublic(t *testing.T) {
	_, a := maskedFixture(t)

	masked := Masked(a, []string{"public"})
	if masked.RawText != RedactedMarker {
		t.Fatalf("raw text leaked: %q", masked.RawText)
	}
	if masked.AutoAnonymizedText != RedactedMarker {
		t.Fatalf("auto anonymized text leaked: %q", masked.AutoAnonymizedText)
	}
	for _, entry := range masked.AutoAnonymizedAliases {
		if entry.Text != RedactedMarker {
			t.Fatalf("alias text leaked: %#v", entry)
		}
		if entry.Alias == "" || entry.AliasType == "" {
			t.Fatalf("alias token lost: %#v", entry)
		}
	}
	for _, entry := range masked.ManualAnonymizedAliases {
		if entry.Text != RedactedMarker {
			t.Fatalf("manual alias text leaked: %#v", entry)
		}
	}
	// The manual projection is the released text and stays readable.
	if masked.ManualAnonymizedText != a.ManualAnonymizedText {
		t.Fatalf("manual anonymized text altered: %q", masked.ManualAnonymizedText)
	}
}

func TestMaskedPassesThroughForPrivilegedRoles(t *testing.T) {
	_, a := maskedFixture(t)

	for _, role := range []string{"admin", "contributor", "corrector"} {
		masked := Masked(a, []string{role})
		if masked.RawText != a.RawText {
			t.Fatalf("role %s should see raw text", role)
		}
		if masked.AutoAnonymizedAliases[0].Text != "UN" {
			t.Fatalf("role %s should see alias texts", role)
		}
	}
}

func TestMaskedDoesNotMutateStoredArticle(t *testing.T) {
	s, a := maskedFixture(t)

	_ = Masked(a, []string{"public"})

	stored, err := s.Get(context.Background(), "sport", a.ObjectID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.RawText != a.RawText {
		t.Fatal("masking leaked into the store")
	}
	if stored.AutoAnonymizedAliases[0].Text != "UN" {
		t.Fatal("masking mutated stored aliases")
	}
}

func TestMaskedMixedRolesAreUnmasked(t *testing.T) {
	_, a := maskedFixture(t)

	masked := Masked(a, []string{"public", "admin"})
	if masked.RawText != a.RawText {
		t.Fatal("holding admin alongside public must unmask")
	}
}

func TestMaskedArticleWithoutProjections(t *testing.T) {
	s := NewInMemory()
	a, err := s.Create(context.Background(), testDraft(), "tester", ModeSingle)
	if err != nil {
		t.Fatal(err)
	}
	masked := Masked(a, []string{"public"})
	if masked.RawText != RedactedMarker {
		t.Fatal("raw text must be redacted")
	}
	if masked.AutoAnonymizedText != "" {
		t.Fatal("empty auto projection must stay empty")
	}
}
