// Package engine implements the coarse/fine match engine: cheap candidate
// selection by blocking field, then scored pairwise comparison against a
// threshold.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/rawblock/empi-engine/internal/comparator"
	"github.com/rawblock/empi-engine/pkg/models"
)

// CoarseFinder returns every other demographic sharing postal_code,
// name_day, or family_name with the given record, excluding the record
// itself. Implemented by the Postgres repository layer.
type CoarseFinder interface {
	FindCoarseCandidates(ctx context.Context, record models.Demographic) ([]models.Demographic, error)
}

// FineMatch is the scored comparison between two demographic records.
type FineMatch struct {
	RecordAID        int64                          `json:"record_a_id"`
	RecordBID        int64                          `json:"record_b_id"`
	AddressMatching  comparator.AddressComparison    `json:"address_matching"`
	NameMatching     comparator.NameComparison       `json:"name_matching"`
	NameDayMatching  bool                            `json:"name_day_matching"`
	SSNMatching      bool                            `json:"ssn_matching"`
	ModelScore       *float64                        `json:"model_score"`
	Score            float64                         `json:"score"`
	Threshold        float64                          `json:"threshold"`
	Match            bool                             `json:"match"`
	ExecTime         string                           `json:"exec_time"`
}

// Mode names a registered (coarse, fine) matcher pair plus its tuning
// parameters.
type Mode struct {
	Name      string
	Threshold float64
	SliceMin  int
}

// ToyMode is the only populated mode: it adds a fixed stride for each of
// postal_code/name_day/family_name equality.
var ToyMode = Mode{Name: "toy", Threshold: 0.5, SliceMin: comparator.DefaultSliceMin}

const toyStride = 0.3

// ToyFineMatching scores two records by the toy rule: +0.3 for each of
// postal_code, name_day, and family_name equality; match iff score >=
// threshold.
func ToyFineMatching(a, b models.Demographic, mode Mode) FineMatch {
	score := 0.0
	if a.PostalCode == b.PostalCode {
		score += toyStride
	}
	if sameNameDay(a.NameDay, b.NameDay) {
		score += toyStride
	}
	if a.FamilyName == b.FamilyName {
		score += toyStride
	}
	// Round to one decimal so three strides sum to exactly 0.9 rather than
	// the 0.8999999999999999 that repeated float addition produces.
	score = math.Round(score*10) / 10

	fm := FineMatch{
		RecordAID: a.RecordID,
		RecordBID: b.RecordID,
		Score:     score,
		Threshold: mode.Threshold,
	}
	fm.Match = fm.Score >= fm.Threshold
	return fm
}

func sameNameDay(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// FineMatching is the full (non-toy) scorer: it assembles name/address
// comparisons and equality checks on name_day/ssn. The scoring model itself
// is a Non-goal (learned matching), so score/threshold remain zero and
// match is always false — this mirrors the "prod" mode name being a
// reserved placeholder with no registry entry, never exercised by default.
func FineMatching(a, b models.Demographic, mode Mode) FineMatch {
	start := time.Now()

	fm := FineMatch{
		RecordAID: a.RecordID,
		RecordBID: b.RecordID,
		AddressMatching: comparator.WrapAddressCheck(comparator.AddressFields{
			Address1:   a.Address1,
			Address2:   a.Address2,
			PostalCode: a.PostalCode,
		}, comparator.AddressFields{
			Address1:   b.Address1,
			Address2:   b.Address2,
			PostalCode: b.PostalCode,
		}, mode.SliceMin),
		NameMatching: comparator.WrapNameCheck(comparator.NameFields{
			GivenName:  a.GivenName,
			MiddleName: a.MiddleName,
			FamilyName: a.FamilyName,
		}, comparator.NameFields{
			GivenName:  b.GivenName,
			MiddleName: b.MiddleName,
			FamilyName: b.FamilyName,
		}, mode.SliceMin),
		NameDayMatching: sameNameDay(a.NameDay, b.NameDay),
		SSNMatching:     a.SSN == b.SSN,
		Score:           0,
		Threshold:       0,
		Match:           false,
	}
	fm.ExecTime = time.Since(start).String()
	return fm
}

// CoarseFunc selects candidate records for a demographic record.
type CoarseFunc func(ctx context.Context, finder CoarseFinder, record models.Demographic) ([]models.Demographic, error)

// FineFunc scores a pair of records.
type FineFunc func(a, b models.Demographic, mode Mode) FineMatch

// registry mirrors the original's MODES dict: a mode name maps to a
// (coarse, fine) function pair. "toy" is populated; "prod" is reserved.
var registry = map[string]struct {
	coarse CoarseFunc
	fine   FineFunc
}{
	"toy": {coarse: ToyCoarseMatching, fine: ToyFineMatching},
}

// ToyCoarseMatching delegates blocking-field candidate selection to the
// repository layer.
func ToyCoarseMatching(ctx context.Context, finder CoarseFinder, record models.Demographic) ([]models.Demographic, error) {
	return finder.FindCoarseCandidates(ctx, record)
}

// ComputeAllMatches runs the registered coarse matcher for `mode` and scores
// every resulting candidate against record with the registered fine
// matcher, returning every fine-match result plus the total elapsed time.
func ComputeAllMatches(ctx context.Context, finder CoarseFinder, record models.Demographic, mode Mode) ([]FineMatch, time.Duration, error) {
	entry, ok := registry[mode.Name]
	if !ok {
		entry = registry["toy"]
	}

	start := time.Now()
	candidates, err := entry.coarse(ctx, finder, record)
	if err != nil {
		return nil, time.Since(start), err
	}

	matches := make([]FineMatch, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.RecordID == record.RecordID {
			continue
		}
		matches = append(matches, entry.fine(record, candidate, mode))
	}
	return matches, time.Since(start), nil
}
