package graph

import (
	"context"
	"testing"
)

// fakeEdgeStore serves a fixed adjacency list keyed by record_id, as if
// every edge touching that record had been loaded from Postgres.
type fakeEdgeStore struct {
	byRecord map[int64][]Edge
}

func (f fakeEdgeStore) EdgesForRecord(ctx context.Context, recordID int64) ([]Edge, error) {
	return f.byRecord[recordID], nil
}

// TestExpand_SixEdgeComponent mirrors a six-edge component converging on a
// single enterprise_id of 12345 via chained strong edges, with one weak
// edge attached that must be reported but not followed.
func TestExpand_SixEdgeComponent(t *testing.T) {
	edges := map[int64][]Edge{
		12345: {
			{Low: 12345, High: 20001, Weight: 0.9, IsValid: true},
			{Low: 12345, High: 20002, Weight: 0.9, IsValid: true},
		},
		20001: {
			{Low: 12345, High: 20001, Weight: 0.9, IsValid: true},
			{Low: 20001, High: 20002, Weight: 0.6, IsValid: true},
			{Low: 20001, High: 20003, Weight: 0.8, IsValid: true},
		},
		20002: {
			{Low: 12345, High: 20002, Weight: 0.9, IsValid: true},
			{Low: 20001, High: 20002, Weight: 0.6, IsValid: true},
			{Low: 20002, High: 20004, Weight: 0.7, IsValid: true},
		},
		20003: {
			{Low: 20001, High: 20003, Weight: 0.8, IsValid: true},
			{Low: 20003, High: 20005, Weight: 0.2, IsValid: true}, // weak, reported but not followed
		},
		20004: {
			{Low: 20002, High: 20004, Weight: 0.7, IsValid: true},
		},
		20005: {
			{Low: 20003, High: 20005, Weight: 0.2, IsValid: true},
		},
	}
	store := fakeEdgeStore{byRecord: edges}

	component, err := Expand(context.Background(), store, 12345, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantMembers := []int64{12345, 20001, 20002, 20003, 20004}
	for _, id := range wantMembers {
		if _, ok := component.RecordIDs[id]; !ok {
			t.Errorf("expected %d to be reached by strong-edge expansion", id)
		}
	}
	if _, ok := component.RecordIDs[20005]; ok {
		t.Errorf("20005 is only reachable via a sub-threshold edge and must not be visited")
	}
	if len(component.Triples) != 6 {
		t.Errorf("expected all 6 distinct edges reported once each, got %d", len(component.Triples))
	}

	enterpriseID, found := EnterpriseID(component.Triples)
	if !found || enterpriseID != 12345 {
		t.Errorf("expected enterprise_id 12345 (the minimum endpoint), got %d (found=%v)", enterpriseID, found)
	}
}

func TestExpand_IgnoresIsValidForTraversal(t *testing.T) {
	// A strong edge above threshold must be followed for traversal purposes
	// even when IsValid is false — only the weight/threshold gate expansion.
	edges := map[int64][]Edge{
		1: {{Low: 1, High: 2, Weight: 0.9, IsValid: false}},
		2: {{Low: 1, High: 2, Weight: 0.9, IsValid: false}},
	}
	store := fakeEdgeStore{byRecord: edges}

	component, err := Expand(context.Background(), store, 1, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := component.RecordIDs[2]; !ok {
		t.Errorf("expected record 2 to be reached despite IsValid=false on the connecting edge")
	}
}

func TestExpand_SingletonNoEdges(t *testing.T) {
	store := fakeEdgeStore{byRecord: map[int64][]Edge{}}
	component, err := Expand(context.Background(), store, 99, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(component.RecordIDs) != 1 {
		t.Errorf("expected a singleton component, got %d members", len(component.RecordIDs))
	}
	if len(component.Triples) != 0 {
		t.Errorf("expected no triples for a record with no edges")
	}
}
