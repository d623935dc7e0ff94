package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/dberrors"
	"github.com/rawblock/empi-engine/internal/graph"
	"github.com/rawblock/empi-engine/internal/idgen"
	"github.com/rawblock/empi-engine/pkg/models"
)

// memStore is an in-memory Store double exercising the full processor
// contract without a database, keyed the same way the Postgres schema is.
type memStore struct {
	mu sync.Mutex

	nextID   int64
	mintedBy map[int64]string // id -> user that minted it, for audit-trail assertions

	demographics map[int64]models.Demographic
	archives     map[int64]models.DemographicArchive
	telecoms     []models.Telecom

	batches      map[int64]models.Batch
	batchActions map[int64]string
	processes    map[int64]models.Process

	matches map[[2]int64]models.EnterpriseMatch
	groups  map[int64]models.EnterpriseGroup

	activateLog    []models.ActionLog
	deactivateLog  []models.ActionLog
	deleteLog      []models.ActionLog
	matchAffirmLog []models.MatchActionLog
	matchDenyLog   []models.MatchActionLog
}

func newMemStore() *memStore {
	return &memStore{
		nextID:       1,
		mintedBy:     map[int64]string{},
		demographics: map[int64]models.Demographic{},
		archives:     map[int64]models.DemographicArchive{},
		batches:      map[int64]models.Batch{},
		batchActions: map[int64]string{},
		processes:    map[int64]models.Process{},
		matches:      map[[2]int64]models.EnterpriseMatch{},
		groups:       map[int64]models.EnterpriseGroup{},
	}
}

func (s *memStore) MintID(ctx context.Context, user, version string, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.mintedBy[id] = user
	return id, nil
}

// --- engine.CoarseFinder ---

func (s *memStore) FindCoarseCandidates(ctx context.Context, record models.Demographic) ([]models.Demographic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Demographic
	for id, d := range s.demographics {
		if id == record.RecordID {
			continue
		}
		if !d.IsActive {
			continue
		}
		if d.PostalCode == record.PostalCode || d.FamilyName == record.FamilyName ||
			(d.NameDay != nil && record.NameDay != nil && d.NameDay.Equal(*record.NameDay)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// --- graph.EdgeStore ---

func (s *memStore) EdgesForRecord(ctx context.Context, recordID int64) ([]graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []graph.Edge
	for pair, m := range s.matches {
		if pair[0] == recordID || pair[1] == recordID {
			out = append(out, graph.Edge{Low: pair[0], High: pair[1], Weight: m.MatchWeight, IsValid: m.IsValid})
		}
	}
	return out, nil
}

// --- graph.CursorStore ---

func (s *memStore) FindMatch(ctx context.Context, low, high int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[[2]int64{low, high}]
	return m.MatchID, ok, nil
}

func (s *memStore) InsertMatch(ctx context.Context, low, high int64, weight float64, transactionKey string, ts time.Time) (int64, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.matches[[2]int64{low, high}] = models.EnterpriseMatch{
		MatchID: id, RecordIDLow: low, RecordIDHigh: high, MatchWeight: weight,
		IsValid: true, TransactionKey: transactionKey, TouchedTS: ts,
	}
	s.mu.Unlock()
	return id, nil
}

func (s *memStore) InvalidateMatch(ctx context.Context, low, high int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{low, high}
	m, ok := s.matches[key]
	if !ok {
		return nil
	}
	m.IsValid = false
	s.matches[key] = m
	return nil
}

func (s *memStore) BatchAction(ctx context.Context, transactionKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.processes {
		if p.TransactionKey == transactionKey {
			return s.batchActions[p.BatchID], nil
		}
	}
	return "", nil
}

func (s *memStore) UpsertGroup(ctx context.Context, recordID, enterpriseID int64, transactionKey string, ts time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.groups[recordID]
	if ok && existing.EnterpriseID == enterpriseID {
		return false, nil
	}
	s.groups[recordID] = models.EnterpriseGroup{RecordID: recordID, EnterpriseID: enterpriseID, TransactionKey: transactionKey, TouchedTS: ts}
	return true, nil
}

func (s *memStore) InsertBulletin(ctx context.Context, batchID, procID, recordID, enterpriseID int64, ts time.Time) (int64, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()
	return id, nil
}

// --- processor.Store extras ---

func (s *memStore) GetDemographic(ctx context.Context, recordID int64) (models.Demographic, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.demographics[recordID]
	return d, ok, nil
}

func (s *memStore) InsertDemographic(ctx context.Context, d models.Demographic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.demographics {
		if existing.UQHash == d.UQHash {
			return dberrors.New(dberrors.DuplicateRecord, "uq_hash collision")
		}
	}
	s.demographics[d.RecordID] = d
	return nil
}

func (s *memStore) SetDemographicActive(ctx context.Context, recordID int64, active bool, touchedBy, transactionKey string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.demographics[recordID]
	d.IsActive = active
	d.TouchedBy = touchedBy
	d.TransactionKey = transactionKey
	d.TouchedTS = ts
	s.demographics[recordID] = d
	return nil
}

func (s *memStore) DeleteDemographic(ctx context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.demographics, recordID)
	return nil
}

func (s *memStore) InsertArchive(ctx context.Context, a models.DemographicArchive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[a.RecordID] = a
	return nil
}

func (s *memStore) GetArchive(ctx context.Context, recordID int64) (models.DemographicArchive, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archives[recordID]
	return a, ok, nil
}

func (s *memStore) DeleteArchive(ctx context.Context, archiveID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.archives {
		if a.ArchiveID == archiveID {
			delete(s.archives, k)
		}
	}
	return nil
}

func (s *memStore) InsertTelecom(ctx context.Context, t models.Telecom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telecoms = append(s.telecoms, t)
	return nil
}

func (s *memStore) SetProcessState(ctx context.Context, procID int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.processes[procID]
	p.State = state
	s.processes[procID] = p
	return nil
}

func (s *memStore) SetProcessRecordID(ctx context.Context, procID, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.processes[procID]
	p.ProcRecordID = recordID
	s.processes[procID] = p
	return nil
}

func (s *memStore) PendingCount(ctx context.Context, batchID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.processes {
		if p.BatchID == batchID && p.State == models.ProcPending {
			n++
		}
	}
	return n, nil
}

func (s *memStore) SetBatchState(ctx context.Context, batchID int64, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[batchID]
	b.State = state
	s.batches[batchID] = b
	return nil
}

func (s *memStore) RevalidateEdgesFor(ctx context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, m := range s.matches {
		if (k[0] == recordID || k[1] == recordID) && !m.IsValid {
			m.IsValid = true
			s.matches[k] = m
		}
	}
	return nil
}

func (s *memStore) InvalidateEdgesFor(ctx context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, m := range s.matches {
		if k[0] == recordID || k[1] == recordID {
			m.IsValid = false
			s.matches[k] = m
		}
	}
	return nil
}

func (s *memStore) DeleteAllInvalidEdges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, m := range s.matches {
		if !m.IsValid {
			delete(s.matches, k)
		}
	}
	return nil
}

func (s *memStore) FindMatchRow(ctx context.Context, low, high int64) (int64, float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[[2]int64{low, high}]
	return m.MatchID, m.MatchWeight, ok, nil
}

func (s *memStore) SetMatchWeight(ctx context.Context, low, high int64, weight float64, touchedBy, transactionKey string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]int64{low, high}
	m, ok := s.matches[key]
	if !ok {
		return nil
	}
	m.MatchWeight = weight
	m.TouchedBy = touchedBy
	m.TransactionKey = transactionKey
	m.TouchedTS = ts
	s.matches[key] = m
	return nil
}

func (s *memStore) DeleteGroupsForComponent(ctx context.Context, recordID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, recordID)
	for id, g := range s.groups {
		if g.EnterpriseID == recordID {
			delete(s.groups, id)
		}
	}
	return nil
}

func (s *memStore) InsertActionLog(ctx context.Context, table string, l models.ActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch table {
	case activateLogTable:
		s.activateLog = append(s.activateLog, l)
	case deactivateLogTable:
		s.deactivateLog = append(s.deactivateLog, l)
	case deleteLogTable:
		s.deleteLog = append(s.deleteLog, l)
	}
	return nil
}

func (s *memStore) InsertMatchActionLog(ctx context.Context, table string, l models.MatchActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch table {
	case matchAffirmLogTable:
		s.matchAffirmLog = append(s.matchAffirmLog, l)
	case matchDenyLogTable:
		s.matchDenyLog = append(s.matchDenyLog, l)
	}
	return nil
}

func (s *memStore) InsertDeleteActionLog(ctx context.Context, l models.DeleteActionLog) error {
	return nil
}

func (s *memStore) FindActivateLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.activateLog {
		if l.TransactionKey == transactionKey {
			return l.RecordID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memStore) FindDeleteLogRecordID(ctx context.Context, transactionKey string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.deleteLog {
		if l.TransactionKey == transactionKey {
			return l.RecordID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memStore) FindMatchAffirmLog(ctx context.Context, transactionKey string) (int64, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.matchAffirmLog {
		if l.TransactionKey == transactionKey {
			return l.RecordIDLow, l.RecordIDHigh, true, nil
		}
	}
	return 0, 0, false, nil
}

func (s *memStore) FindMatchDenyLog(ctx context.Context, transactionKey string) (int64, int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.matchDenyLog {
		if l.TransactionKey == transactionKey {
			return l.RecordIDLow, l.RecordIDHigh, true, nil
		}
	}
	return 0, 0, false, nil
}

func (s *memStore) QueryRecords(ctx context.Context, endpoint models.Endpoint, filter map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}

// --- audit.Store (same memStore, simpler surface) ---

func (s *memStore) InsertBatch(ctx context.Context, batchID int64, action, user string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batchID] = models.Batch{BatchID: batchID, State: models.BatchStarting, User: user, CreatedTS: ts}
	s.batchActions[batchID] = action
	return nil
}

func (s *memStore) InsertProcess(ctx context.Context, proc models.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processes[proc.ProcID] = proc
	return nil
}

// --- test helpers ---

type nopNotifier struct{}

func (nopNotifier) PublishBulletin(batchID, procID, recordID, enterpriseID int64, ts time.Time) {}

func newTestProcessor(store *memStore) *Processor {
	return New(store, nopNotifier{})
}

func newTestAuditor(ctx context.Context, store *memStore, user, action string) (*audit.Auditor, error) {
	minter := idgen.New(store, "test")
	return audit.New(ctx, store, minter, user, action)
}

func demoPayload(given, family, postal string) map[string]interface{} {
	return map[string]interface{}{
		"given_name":  given,
		"family_name": family,
		"postal_code": postal,
	}
}

func TestDemographic_DuplicateUQHashIsSkippedNotError(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}

	payload := IngestPayload{Demographics: []map[string]interface{}{
		demoPayload("Jon", "Smith", "94107"),
		demoPayload("Jon", "Smith", "94107"), // identical fields -> identical uq_hash
	}}

	metrics, err := proc.Demographic(ctx, auditor, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.RecordCount != 2 {
		t.Errorf("expected 2 attempted inserts, got %d", metrics.RecordCount)
	}
	if metrics.SkippedCount != 1 {
		t.Errorf("expected the second identical row to be skipped, got %d skipped", metrics.SkippedCount)
	}
	if len(metrics.AffectedRecords) != 1 {
		t.Errorf("expected exactly 1 affected record, got %d", len(metrics.AffectedRecords))
	}
}

// TestDemographic_AllMintedIDsCarryTheRequestingUser guards against every id
// a batch mints — batch_id, proc_id, record_id, the activate_log id — being
// stamped with the minter's own base user instead of the actual operator who
// opened the auditor. newTestAuditor builds its idgen.Minter scoped to
// "test", so any mint that leaks through unscoped would show up as "test"
// here instead of "alice".
func TestDemographic_AllMintedIDsCarryTheRequestingUser(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}
	if got := store.mintedBy[auditor.BatchID]; got != "alice" {
		t.Errorf("batch_id %d minted by %q, want %q", auditor.BatchID, got, "alice")
	}

	payload := IngestPayload{Demographics: []map[string]interface{}{
		demoPayload("Jon", "Smith", "94107"),
	}}
	metrics, err := proc.Demographic(ctx, auditor, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for id, user := range store.mintedBy {
		if user != "alice" {
			t.Errorf("id %d was minted by %q, want %q (every id in this batch must carry the requesting user)", id, user, "alice")
		}
	}
	if len(metrics.AffectedRecords) != 1 {
		t.Fatalf("expected 1 affected record, got %d", len(metrics.AffectedRecords))
	}
}

func TestDemographic_MissingRequiredFieldCountsAsError(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}

	payload := IngestPayload{Demographics: []map[string]interface{}{
		{"given_name": "Jon"}, // missing family_name
	}}

	metrics, err := proc.Demographic(ctx, auditor, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.ErrorCount != 1 || len(metrics.ErrorRows) != 1 || metrics.ErrorRows[0] != 1 {
		t.Errorf("expected row 1 flagged as an error, got %+v", metrics)
	}
	if metrics.RecordCount != 0 {
		t.Errorf("expected no record to be built for a row missing a required field")
	}
}

func TestDemographic_TwoMatchingRecordsGetGroupedTogether(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}

	payload := IngestPayload{Demographics: []map[string]interface{}{
		demoPayload("Jon", "Smith", "94107"),
		demoPayload("Jonathan", "Smith", "94107"),
	}}

	metrics, err := proc.Demographic(ctx, auditor, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics.AffectedRecords) != 2 {
		t.Fatalf("expected 2 affected records, got %d", len(metrics.AffectedRecords))
	}

	recA := metrics.AffectedRecords[0].RecordID
	recB := metrics.AffectedRecords[1].RecordID

	store.mu.Lock()
	groupA, okA := store.groups[recA]
	groupB, okB := store.groups[recB]
	store.mu.Unlock()

	if !okA || !okB {
		t.Fatalf("expected both records to be grouped, got A=%v B=%v", okA, okB)
	}
	if groupA.EnterpriseID != groupB.EnterpriseID {
		t.Errorf("expected both records to share an enterprise_id, got %d vs %d", groupA.EnterpriseID, groupB.EnterpriseID)
	}
}

func TestAffirmMatching_MissingEdgeReturnsEdgeNotFound(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "match_affirm")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}

	err = proc.AffirmMatching(ctx, auditor, 1, 2)
	if !dberrors.Is(err, dberrors.EdgeNotFound) {
		t.Errorf("expected dberrors.EdgeNotFound, got %v", err)
	}
}

func TestAffirmThenDenyRoundTripsWeight(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	// Seed a weak edge directly, as if graph.Run had just written it.
	store.matches[[2]int64{1, 2}] = models.EnterpriseMatch{MatchID: 99, RecordIDLow: 1, RecordIDHigh: 2, MatchWeight: 0.3, IsValid: true}

	auditor, err := newTestAuditor(ctx, store, "alice", "match_affirm")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}
	if err := proc.AffirmMatching(ctx, auditor, 1, 2); err != nil {
		t.Fatalf("affirm: %v", err)
	}
	store.mu.Lock()
	afterAffirm := store.matches[[2]int64{1, 2}].MatchWeight
	store.mu.Unlock()
	if afterAffirm != 1.3 {
		t.Fatalf("expected weight 0.3+1=1.3 after affirm, got %v", afterAffirm)
	}

	if err := proc.DenyMatching(ctx, auditor, 1, 2); err != nil {
		t.Fatalf("deny: %v", err)
	}
	store.mu.Lock()
	afterDeny := store.matches[[2]int64{1, 2}].MatchWeight
	store.mu.Unlock()
	if afterDeny != 0.3 {
		t.Errorf("expected weight to round-trip back to 0.3 after affirm+deny, got %v", afterDeny)
	}
}

func TestDeactivateDemographic_DropsGroupAndSweepsInvalidEdges(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	auditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open auditor: %v", err)
	}
	_, err = proc.Demographic(ctx, auditor, IngestPayload{Demographics: []map[string]interface{}{
		demoPayload("Jon", "Smith", "94107"),
		demoPayload("Jonathan", "Smith", "94107"),
	}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	store.mu.Lock()
	var ids []int64
	for id := range store.demographics {
		ids = append(ids, id)
	}
	store.mu.Unlock()
	if len(ids) != 2 {
		t.Fatalf("expected two demographic rows, got %d", len(ids))
	}
	// Deactivate the lower record_id: it is the component's enterprise_id (the
	// minimum of its two endpoints), so DeleteGroupsForComponent's
	// enterprise_id-match path also drops its partner's group row.
	recA, recB := ids[0], ids[1]
	if recB < recA {
		recA, recB = recB, recA
	}

	deactAuditor, err := newTestAuditor(ctx, store, "alice", "deactivate_demographic")
	if err != nil {
		t.Fatalf("open deactivate auditor: %v", err)
	}
	if err := proc.DeactivateDemographic(ctx, deactAuditor, recA); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.groups[recA]; ok {
		t.Errorf("expected the deactivated record's group row to be dropped")
	}
	if _, ok := store.groups[recB]; ok {
		t.Errorf("expected the former component partner's group row to be dropped too, since the pair had no other members")
	}
	for pair, m := range store.matches {
		if !m.IsValid {
			t.Errorf("expected the global invalid-edge sweep to delete invalidated edges, but %v is still present", pair)
		}
	}
	if store.demographics[recA].IsActive {
		t.Errorf("expected record %d to be marked inactive", recA)
	}
}

func TestDeleteAction_UndoDeleteRestoresArchivedRowAsNewRecord(t *testing.T) {
	store := newMemStore()
	proc := newTestProcessor(store)
	ctx := context.Background()

	ingestAuditor, err := newTestAuditor(ctx, store, "alice", "demographic")
	if err != nil {
		t.Fatalf("open ingest auditor: %v", err)
	}
	metrics, err := proc.Demographic(ctx, ingestAuditor, IngestPayload{Demographics: []map[string]interface{}{
		demoPayload("Jon", "Smith", "94107"),
	}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	recordID := metrics.AffectedRecords[0].RecordID

	deleteAuditor, err := newTestAuditor(ctx, store, "alice", "delete_demographic")
	if err != nil {
		t.Fatalf("open delete auditor: %v", err)
	}
	if err := proc.DeleteDemographic(ctx, deleteAuditor, recordID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	store.mu.Lock()
	_, stillExists := store.demographics[recordID]
	store.mu.Unlock()
	if stillExists {
		t.Fatalf("expected the demographic row to be hard-deleted")
	}

	var deleteTransactionKey string
	store.mu.Lock()
	for _, l := range store.deleteLog {
		if l.RecordID == recordID {
			deleteTransactionKey = l.TransactionKey
		}
	}
	store.mu.Unlock()
	if deleteTransactionKey == "" {
		t.Fatalf("expected a delete_log row naming record %d", recordID)
	}
	var deleteBatchID, deleteProcID int64
	if _, err := fmt.Sscanf(deleteTransactionKey, "%d_%d", &deleteBatchID, &deleteProcID); err != nil {
		t.Fatalf("parse transaction key %q: %v", deleteTransactionKey, err)
	}

	undoAuditor, err := newTestAuditor(ctx, store, "alice", "delete_action")
	if err != nil {
		t.Fatalf("open undo auditor: %v", err)
	}
	if err := proc.DeleteAction(ctx, undoAuditor, deleteBatchID, deleteProcID, "delete"); err != nil {
		t.Fatalf("delete_action undo: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	var restoredCount int
	for id, d := range store.demographics {
		if id != recordID && d.FamilyName == "Smith" && d.GivenName == "Jon" {
			restoredCount++
		}
	}
	if restoredCount != 1 {
		t.Errorf("expected exactly one restored record under a fresh record_id, got %d", restoredCount)
	}
	if len(store.archives) != 0 {
		t.Errorf("expected the archive row to be dropped once restored, got %d remaining", len(store.archives))
	}
}

