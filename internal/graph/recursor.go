// Package graph implements the connected-component machinery: the recursor
// expands a seed record into its full component, and the cursor rewrites
// the match/group/bulletin tables to reflect one component.
package graph

import "context"

// Edge is a match-graph edge as loaded from storage: an (unordered, but
// stored low<high) pair plus its weight. IsValid is carried through for
// completeness but the recursor never filters on it — see Expand.
type Edge struct {
	Low     int64
	High    int64
	Weight  float64
	IsValid bool
}

// EdgeStore loads every EnterpriseMatch edge touching a record_id, on
// either side of the ordered pair.
type EdgeStore interface {
	EdgesForRecord(ctx context.Context, recordID int64) ([]Edge, error)
}

// Triple is the (low, high, weight) tuple the cursor consumes.
type Triple struct {
	Low    int64
	High   int64
	Weight float64
}

// Component is the result of expanding a seed record: every record_id
// reachable through the match graph, and every distinct edge touched along
// the way (in first-seen order).
type Component struct {
	RecordIDs map[int64]struct{}
	Triples   []Triple
}

// Expand performs a fixpoint breadth-first expansion of seed's connected
// component using an explicit work queue and visited-set (not recursion, so
// large components cannot overflow the stack).
//
// Every edge touching a visited record is recorded in Triples exactly once,
// regardless of whether it is currently valid — invalidated edges must
// still reach the cursor so it can act on them. Only edges whose weight
// meets or exceeds threshold expand the frontier to new records; weaker
// edges are reported but do not pull in their far endpoint.
func Expand(ctx context.Context, store EdgeStore, seed int64, threshold float64) (Component, error) {
	visited := map[int64]struct{}{seed: {}}
	queriedAlready := map[int64]struct{}{}
	seenTriple := map[[2]int64]struct{}{}
	var triples []Triple

	for {
		grewBy := 0
		frontier := make([]int64, 0, len(visited))
		for id := range visited {
			if _, done := queriedAlready[id]; !done {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			break
		}

		var newlyReachable []int64
		for _, recordID := range frontier {
			edges, err := store.EdgesForRecord(ctx, recordID)
			if err != nil {
				return Component{}, err
			}
			for _, e := range edges {
				key := [2]int64{e.Low, e.High}
				if _, seen := seenTriple[key]; !seen {
					seenTriple[key] = struct{}{}
					triples = append(triples, Triple{Low: e.Low, High: e.High, Weight: e.Weight})
				}
				if e.Weight >= threshold {
					newlyReachable = append(newlyReachable, e.Low, e.High)
				}
			}
			queriedAlready[recordID] = struct{}{}
		}

		for _, id := range newlyReachable {
			if _, ok := visited[id]; !ok {
				visited[id] = struct{}{}
				grewBy++
			}
		}
		if grewBy == 0 {
			break
		}
	}

	return Component{RecordIDs: visited, Triples: triples}, nil
}
