package samples

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// -- Mocks --

type mockRepo struct {
	samples map[uuid.UUID]*Sample
	order   []uuid.UUID // insertion order
	orders  map[uuid.UUID]bool
	creates int
}

func newMockRepo() *mockRepo {
	return &mockRepo{samples: make(map[uuid.UUID]*Sample), orders: make(map[uuid.UUID]bool)}
}

func (m *mockRepo) Create(_ context.Context, s *Sample) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.samples[s.ID] = s
	m.order = append(m.order, s.ID)
	m.creates++
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Sample, error) {
	s, ok := m.samples[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (m *mockRepo) ReplaceResults(_ context.Context, id uuid.UUID, results []Result, state string) error {
	s, ok := m.samples[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Results = results
	s.State = state
	return nil
}

func (m *mockRepo) UpdateState(_ context.Context, id uuid.UUID, state string) error {
	s, ok := m.samples[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.State = state
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.samples, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Sample, int, error) {
	var items []*Sample
	for _, id := range m.order {
		if s, ok := m.samples[id]; ok {
			items = append(items, s)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) ListByOrder(_ context.Context, orderID uuid.UUID) ([]*Sample, error) {
	var items []*Sample
	for _, id := range m.order {
		if s, ok := m.samples[id]; ok && s.OrderID == orderID {
			items = append(items, s)
		}
	}
	return items, nil
}

func (m *mockRepo) ListIDsByOrder(_ context.Context, orderID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, id := range m.order {
		if s, ok := m.samples[id]; ok && s.OrderID == orderID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockRepo) LockOrderForGeneration(_ context.Context, orderID uuid.UUID) error {
	if !m.orders[orderID] {
		return pgx.ErrNoRows
	}
	return nil
}

func (m *mockRepo) ListCompletedForUser(_ context.Context, _ uuid.UUID) ([]*Sample, error) {
	var items []*Sample
	for _, id := range m.order {
		if s, ok := m.samples[id]; ok && s.State == StateCompleted {
			items = append(items, s)
		}
	}
	return items, nil
}

// passthroughTx stands in for the transaction manager.
type passthroughTx struct{}

func (passthroughTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockAnalysisResolver struct {
	analyses map[uuid.UUID]AnalysisRef
}

func (m *mockAnalysisResolver) ResolveAnalysis(_ context.Context, id uuid.UUID) (*AnalysisRef, error) {
	ref, ok := m.analyses[id]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type mockOrderResolver struct {
	orders map[uuid.UUID]OrderRef
}

func (m *mockOrderResolver) ResolveOrder(_ context.Context, id uuid.UUID) (*OrderRef, error) {
	ref, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type mockUserResolver struct {
	users map[uuid.UUID]UserRef
}

func (m *mockUserResolver) ResolveUser(_ context.Context, id uuid.UUID) (*UserRef, error) {
	ref, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type fixture struct {
	svc      *Service
	repo     *mockRepo
	analyses *mockAnalysisResolver
	orders   *mockOrderResolver
	users    *mockUserResolver
	cbcID    uuid.UUID
	glucID   uuid.UUID
	orderID  uuid.UUID
	userID   uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMockRepo(),
		cbcID:   uuid.New(),
		glucID:  uuid.New(),
		orderID: uuid.New(),
		userID:  uuid.New(),
	}
	f.analyses = &mockAnalysisResolver{analyses: map[uuid.UUID]AnalysisRef{
		f.cbcID: {
			Name:        "Complete Blood Count",
			Description: "Counts blood cells.",
			Parameters: []ParamTemplate{
				{Name: "Hemoglobin", Unit: "g/dL", ReferenceRange: "13.5-17.5"},
				{Name: "Hematocrit", Unit: "%", ReferenceRange: "41-53"},
				{Name: "WBC", Unit: "10^3/uL", ReferenceRange: "4.5-11.0"},
			},
		},
		f.glucID: {
			Name:       "Glucose",
			Parameters: []ParamTemplate{{Name: "Glucose", Unit: "mg/dL", ReferenceRange: "70-100"}},
		},
	}}
	f.orders = &mockOrderResolver{orders: map[uuid.UUID]OrderRef{
		f.orderID: {UserID: f.userID, AnalysisIDs: []uuid.UUID{f.cbcID, f.glucID}},
	}}
	f.users = &mockUserResolver{users: map[uuid.UUID]UserRef{
		f.userID: {Name: "Ana Torres", Email: "ana@example.com"},
	}}
	f.repo.orders[f.orderID] = true
	f.svc = NewService(f.repo, passthroughTx{}, f.analyses, f.orders, f.users)
	return f
}

// -- Tests --

func TestGenerateForOrder_FreezesTemplates(t *testing.T) {
	f := newFixture()

	result, err := f.svc.GenerateForOrder(context.Background(), f.orderID)
	if err != nil {
		t.Fatalf("GenerateForOrder() error: %v", err)
	}
	if !result.Generated {
		t.Fatal("expected generated=true on first call")
	}
	if len(result.SampleIDs) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(result.SampleIDs))
	}

	cbc, err := f.svc.Get(context.Background(), result.SampleIDs[0])
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if cbc.State != StateProcessing {
		t.Errorf("expected state processing, got %s", cbc.State)
	}
	if len(cbc.Results) != 3 {
		t.Fatalf("expected one result per catalog parameter, got %d", len(cbc.Results))
	}
	if cbc.Results[0].ParamName != "Hemoglobin" || cbc.Results[0].Unit != "g/dL" || cbc.Results[0].ReferenceRange != "13.5-17.5" {
		t.Errorf("template not frozen: %+v", cbc.Results[0])
	}
	if cbc.Results[0].Value != nil {
		t.Errorf("expected null value, got %v", cbc.Results[0].Value)
	}
}

func TestGenerateForOrder_Idempotent(t *testing.T) {
	f := newFixture()

	first, err := f.svc.GenerateForOrder(context.Background(), f.orderID)
	if err != nil {
		t.Fatalf("first GenerateForOrder() error: %v", err)
	}
	second, err := f.svc.GenerateForOrder(context.Background(), f.orderID)
	if err != nil {
		t.Fatalf("second GenerateForOrder() error: %v", err)
	}

	if second.Generated {
		t.Error("expected generated=false on repeat call")
	}
	if len(second.SampleIDs) != len(first.SampleIDs) {
		t.Fatalf("expected same ids back, got %d vs %d", len(second.SampleIDs), len(first.SampleIDs))
	}
	for i := range first.SampleIDs {
		if first.SampleIDs[i] != second.SampleIDs[i] {
			t.Errorf("id %d differs: %s vs %s", i, first.SampleIDs[i], second.SampleIDs[i])
		}
	}
	if f.repo.creates != 2 {
		t.Errorf("expected 2 inserts total, got %d", f.repo.creates)
	}
}

func TestGenerateForOrder_SkipsDeletedAnalysis(t *testing.T) {
	f := newFixture()

	// Catalog entry removed between order placement and generation
	delete(f.analyses.analyses, f.glucID)

	result, err := f.svc.GenerateForOrder(context.Background(), f.orderID)
	if err != nil {
		t.Fatalf("GenerateForOrder() error: %v", err)
	}
	if len(result.SampleIDs) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(result.SampleIDs))
	}
	sample, _ := f.svc.Get(context.Background(), result.SampleIDs[0])
	if sample.AnalysisID != f.cbcID {
		t.Errorf("expected surviving analysis, got %s", sample.AnalysisID)
	}
}

func TestGenerateForOrder_AllAnalysesDeleted(t *testing.T) {
	f := newFixture()

	delete(f.analyses.analyses, f.cbcID)
	delete(f.analyses.analyses, f.glucID)

	result, err := f.svc.GenerateForOrder(context.Background(), f.orderID)
	if err != nil {
		t.Fatalf("GenerateForOrder() error: %v", err)
	}
	if !result.Generated {
		t.Error("expected generated=true even when nothing survives the catalog")
	}
	if len(result.SampleIDs) != 0 {
		t.Fatalf("expected no samples, got %d", len(result.SampleIDs))
	}
	if f.repo.creates != 0 {
		t.Errorf("expected no inserts, got %d", f.repo.creates)
	}

	// The id list must serialize as an empty array, not null.
	body, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"sample_ids":[]`) {
		t.Errorf("expected empty sample_ids array, got %s", body)
	}
}

func TestGenerateForOrder_OrderNotFound(t *testing.T) {
	f := newFixture()

	if _, err := f.svc.GenerateForOrder(context.Background(), uuid.New()); err != ErrOrderNotFound {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestSubmitResults_CompletesAndReplaces(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	inputs := []ResultInput{
		{ParamName: "Hemoglobin", Unit: "g/dL", ReferenceRange: "13.5-17.5", Value: 14.2},
		{ParamName: "Hematocrit", Unit: "%", ReferenceRange: "41-53", Value: 45.0},
		{ParamName: "WBC", Unit: "10^3/uL", ReferenceRange: "4.5-11.0", Value: 7.1},
	}
	sample, err := f.svc.SubmitResults(context.Background(), id, inputs)
	if err != nil {
		t.Fatalf("SubmitResults() error: %v", err)
	}
	if sample.State != StateCompleted {
		t.Errorf("expected state completed, got %s", sample.State)
	}
	if len(sample.Results) != 3 || sample.Results[0].Value != 14.2 {
		t.Errorf("results not replaced: %+v", sample.Results)
	}

	// Submitting the same payload again leaves the sample unchanged
	again, err := f.svc.SubmitResults(context.Background(), id, inputs)
	if err != nil {
		t.Fatalf("repeat SubmitResults() error: %v", err)
	}
	if again.State != StateCompleted || len(again.Results) != 3 {
		t.Errorf("repeat submission changed the sample: %+v", again)
	}
}

func TestSubmitResults_Validation(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	if _, err := f.svc.SubmitResults(context.Background(), id, nil); err == nil {
		t.Error("expected error for empty results")
	}
	if _, err := f.svc.SubmitResults(context.Background(), id, []ResultInput{{Value: 1.0}}); err == nil {
		t.Error("expected error for missing param_name")
	}
	if _, err := f.svc.SubmitResults(context.Background(), uuid.New(), []ResultInput{{ParamName: "X", Value: 1.0}}); err != ErrNotFound {
		t.Error("expected ErrNotFound for unknown sample")
	}
}

func TestCatalogMutation_DoesNotTouchFrozenResults(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	// Catalog rewritten after generation
	f.analyses.analyses[f.cbcID] = AnalysisRef{
		Name:       "CBC v2",
		Parameters: []ParamTemplate{{Name: "Platelets", Unit: "10^3/uL", ReferenceRange: "150-450"}},
	}

	sample, _ := f.svc.Get(context.Background(), id)
	if len(sample.Results) != 3 || sample.Results[0].ParamName != "Hemoglobin" {
		t.Errorf("frozen results changed after catalog edit: %+v", sample.Results)
	}

	d, err := f.svc.GetDetails(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDetails() error: %v", err)
	}
	if d.AnalysisName != "CBC v2" {
		t.Errorf("detail view should show live catalog name, got %s", d.AnalysisName)
	}
}

func TestGetDetails_SentinelsForDeletedReferents(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	delete(f.analyses.analyses, f.cbcID)
	delete(f.orders.orders, f.orderID)

	d, err := f.svc.GetDetails(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDetails() error: %v", err)
	}
	if d.AnalysisName != UnknownAnalysisName {
		t.Errorf("expected sentinel analysis name, got %s", d.AnalysisName)
	}
	if d.AnalysisDescription != NoDescription {
		t.Errorf("expected sentinel description, got %s", d.AnalysisDescription)
	}
	if d.PatientName != UnknownPatientName || d.PatientEmail != UnknownPatientEmail {
		t.Errorf("expected patient sentinels, got %s / %s", d.PatientName, d.PatientEmail)
	}
	if len(d.Results) != 3 {
		t.Errorf("frozen results must survive deleted referents, got %d", len(d.Results))
	}
}

func TestUpdateSample_StateEnum(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	untaken := StateUntaken
	sample, err := f.svc.Update(context.Background(), id, UpdateSampleInput{State: &untaken})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if sample.State != StateUntaken {
		t.Errorf("expected state untaken, got %s", sample.State)
	}

	bad := "lost"
	if _, err := f.svc.Update(context.Background(), id, UpdateSampleInput{State: &bad}); err == nil {
		t.Error("expected error for invalid state")
	}
}

func TestUpdateSample_PatchesResultsWithoutCompleting(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)
	id := result.SampleIDs[0]

	partial := []ResultInput{{ParamName: "Hemoglobin", Unit: "g/dL", Value: 14.2}}
	sample, err := f.svc.Update(context.Background(), id, UpdateSampleInput{Results: &partial})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if sample.State != StateProcessing {
		t.Errorf("results patch must not change state, got %s", sample.State)
	}
	if len(sample.Results) != 1 || sample.Results[0].Value != 14.2 {
		t.Errorf("results not patched: %+v", sample.Results)
	}
}

func TestListCompletedForUser(t *testing.T) {
	f := newFixture()
	result, _ := f.svc.GenerateForOrder(context.Background(), f.orderID)

	// Only the first sample gets completed
	if _, err := f.svc.SubmitResults(context.Background(), result.SampleIDs[0],
		[]ResultInput{{ParamName: "Hemoglobin", Value: 14.2}}); err != nil {
		t.Fatalf("SubmitResults() error: %v", err)
	}

	items, err := f.svc.ListCompletedForUser(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("ListCompletedForUser() error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 completed sample, got %d", len(items))
	}
	if items[0].PatientName != "Ana Torres" {
		t.Errorf("expected joined patient, got %s", items[0].PatientName)
	}
}
