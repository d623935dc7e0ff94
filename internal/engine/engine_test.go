package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rawblock/empi-engine/pkg/models"
)

type fakeFinder struct {
	candidates []models.Demographic
}

func (f fakeFinder) FindCoarseCandidates(ctx context.Context, record models.Demographic) ([]models.Demographic, error) {
	return f.candidates, nil
}

func TestToyFineMatching_AllThreeFieldsMatch(t *testing.T) {
	day := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	a := models.Demographic{RecordID: 1, PostalCode: "94107", FamilyName: "SMITH", NameDay: &day}
	b := models.Demographic{RecordID: 2, PostalCode: "94107", FamilyName: "SMITH", NameDay: &day}

	fm := ToyFineMatching(a, b, ToyMode)
	if fm.Score != 0.9 {
		t.Errorf("expected a score of 0.9 for three-field agreement, got %v", fm.Score)
	}
	if !fm.Match {
		t.Errorf("expected Match=true at threshold %v with score %v", ToyMode.Threshold, fm.Score)
	}
}

func TestToyFineMatching_BelowThreshold(t *testing.T) {
	dayA := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	dayB := time.Date(1975, 9, 12, 0, 0, 0, 0, time.UTC)
	a := models.Demographic{RecordID: 1, PostalCode: "94107", FamilyName: "SMITH", NameDay: &dayA}
	b := models.Demographic{RecordID: 2, PostalCode: "10001", FamilyName: "JONES", NameDay: &dayB}

	fm := ToyFineMatching(a, b, ToyMode)
	if fm.Score != 0 {
		t.Errorf("expected a score of 0 for total disagreement, got %v", fm.Score)
	}
	if fm.Match {
		t.Errorf("expected Match=false below threshold")
	}
}

func TestToyFineMatching_TwoOfThreeHitsThreshold(t *testing.T) {
	// Two of three toy fields matching (0.6) clears the 0.5 threshold.
	dayA := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	dayB := time.Date(1975, 9, 12, 0, 0, 0, 0, time.UTC)
	a := models.Demographic{RecordID: 1, PostalCode: "94107", FamilyName: "SMITH", NameDay: &dayA}
	b := models.Demographic{RecordID: 2, PostalCode: "94107", FamilyName: "SMITH", NameDay: &dayB}

	fm := ToyFineMatching(a, b, ToyMode)
	if fm.Score != 0.6 {
		t.Errorf("expected score 0.6, got %v", fm.Score)
	}
	if !fm.Match {
		t.Errorf("expected Match=true at score 0.6 against threshold 0.5")
	}
}

func TestComputeAllMatches_ExcludesSelfAndScoresRest(t *testing.T) {
	seed := models.Demographic{RecordID: 10, PostalCode: "94107", FamilyName: "SMITH"}
	candidates := []models.Demographic{
		seed, // coarse results can legitimately include the seed itself
		{RecordID: 11, PostalCode: "94107", FamilyName: "SMITH"},
		{RecordID: 12, PostalCode: "10001", FamilyName: "JONES"},
	}
	finder := fakeFinder{candidates: candidates}

	matches, _, err := ComputeAllMatches(context.Background(), finder, seed, ToyMode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 scored candidates (self excluded), got %d", len(matches))
	}
	for _, m := range matches {
		if m.RecordBID == seed.RecordID {
			t.Errorf("seed record should never be scored against itself")
		}
	}
}

func TestComputeAllMatches_UnknownModeFallsBackToToy(t *testing.T) {
	dayA := time.Date(1980, 5, 1, 0, 0, 0, 0, time.UTC)
	dayB := time.Date(1975, 9, 12, 0, 0, 0, 0, time.UTC)
	seed := models.Demographic{RecordID: 1, PostalCode: "94107", FamilyName: "SMITH", NameDay: &dayA}
	finder := fakeFinder{candidates: []models.Demographic{{RecordID: 2, PostalCode: "10001", FamilyName: "SMITH", NameDay: &dayB}}}

	matches, _, err := ComputeAllMatches(context.Background(), finder, seed, Mode{Name: "nonexistent", Threshold: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Score != 0.3 {
		t.Errorf("expected the toy fallback to score family_name agreement, got %+v", matches)
	}
}
