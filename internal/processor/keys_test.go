package processor

import (
	"testing"
	"time"

	"github.com/rawblock/empi-engine/pkg/models"
)

func TestApplyHash_SameFieldsProduceSameHash(t *testing.T) {
	day := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	a := models.Demographic{
		Address1: "123 Main St", PostalCode: "94107", Organization: "acme",
		GivenName: "Jon", FamilyName: "Smith", NameDay: &day, Gender: "M",
	}
	b := a
	if applyHash(a) != applyHash(b) {
		t.Errorf("identical demographics must hash identically")
	}
}

func TestApplyHash_FieldOrderMatters(t *testing.T) {
	// Swapping given_name and family_name values must change the hash, since
	// hashKeys concatenates the fields in a fixed order and field order is
	// part of the hash's identity.
	a := models.Demographic{GivenName: "AB", FamilyName: "C"}
	b := models.Demographic{GivenName: "C", FamilyName: "AB"}
	if applyHash(a) == applyHash(b) {
		t.Errorf("expected different hashes for %+v and %+v", a, b)
	}
}

func TestCompositeNameOf_TruncatesGivenNameToFiveRunes(t *testing.T) {
	got := compositeNameOf("Jonathan", "Smith")
	want := "JonatSmith"
	if got != want {
		t.Errorf("compositeNameOf() = %q, want %q", got, want)
	}
}

func TestCompositeNameOf_StripsSpacesAndHyphens(t *testing.T) {
	got := compositeNameOf("Mary-Ann", "St John")
	if got == "" {
		t.Fatal("expected a non-empty composite name")
	}
	for _, r := range got {
		if r == ' ' || r == '-' {
			t.Errorf("composite name %q should not contain spaces or hyphens", got)
		}
	}
}

func TestCompositeNameOf_BlankFamilyFallsBackToGiven(t *testing.T) {
	got := compositeNameOf("Jonathan", "")
	if got != "Jonathan" {
		t.Errorf("expected fallback to bare given_name, got %q", got)
	}
}

func TestCompositeNameDayPostalOf_RequiresBoth(t *testing.T) {
	day := time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := compositeNameDayPostalOf(nil, "94107"); got != "" {
		t.Errorf("expected blank when name_day is nil, got %q", got)
	}
	if got := compositeNameDayPostalOf(&day, ""); got != "" {
		t.Errorf("expected blank when postal_code is empty, got %q", got)
	}
	if got := compositeNameDayPostalOf(&day, "94107"); got != "19900102:94107" {
		t.Errorf("compositeNameDayPostalOf() = %q, want %q", got, "19900102:94107")
	}
}

func TestParseNameDay_AcceptsYYYYMMDDString(t *testing.T) {
	got, err := parseNameDay("19900102")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Year() != 1990 || got.Month() != time.January || got.Day() != 2 {
		t.Errorf("parseNameDay(%q) = %v, want 1990-01-02", "19900102", got)
	}
}

func TestParseNameDay_NilAndEmptyAreBlank(t *testing.T) {
	if got, err := parseNameDay(nil); got != nil || err != nil {
		t.Errorf("expected (nil, nil) for a nil input, got (%v, %v)", got, err)
	}
	if got, err := parseNameDay(""); got != nil || err != nil {
		t.Errorf("expected (nil, nil) for an empty string, got (%v, %v)", got, err)
	}
}

func TestParseNameDay_RejectsUnsupportedType(t *testing.T) {
	_, err := parseNameDay(42)
	if err != errUnsupportedNameDay {
		t.Errorf("expected errUnsupportedNameDay for an int input, got %v", err)
	}
}

func TestApplyRecordMetadata_FillsAllDerivedFields(t *testing.T) {
	d := models.Demographic{
		GivenName: "Jon", FamilyName: "Smith", Organization: "acme",
		System: "ehr", SystemID: "123", PostalCode: "94107",
	}
	now := time.Now()
	applyRecordMetadata(&d, "alice", now)

	if d.UQHash == "" {
		t.Error("expected a non-empty uq_hash")
	}
	if d.CompositeKey != "acme:ehr:123" {
		t.Errorf("composite_key = %q, want %q", d.CompositeKey, "acme:ehr:123")
	}
	if d.CompositeName != "JonSmith" {
		t.Errorf("composite_name = %q, want %q", d.CompositeName, "JonSmith")
	}
	if d.TouchedBy != "alice" || !d.TouchedTS.Equal(now) {
		t.Errorf("expected touched_by/touched_ts to be stamped, got %q/%v", d.TouchedBy, d.TouchedTS)
	}
}
