package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/biofoundry/plate-planner/internal/layout"
	"github.com/biofoundry/plate-planner/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRouter(t *testing.T) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	planner := layout.New()
	clock := newControllableClock(time.Date(2025, 7, 28, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(planner, store, WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, clock
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestGetSpecReturnsDefaults(t *testing.T) {
	router, clock := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/spec", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Slots    [][]int `json:"slots"`
		Geometry struct {
			WellsPerColumn int `json:"wellsPerColumn"`
			Columns        int `json:"columns"`
		} `json:"geometry"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	want := storage.DefaultSpec().Slots
	if len(body.Slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(body.Slots))
	}
	if body.Geometry.WellsPerColumn != 8 || body.Geometry.Columns != 12 {
		t.Fatalf("unexpected geometry: %+v", body.Geometry)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutSpecUpdatesStorage(t *testing.T) {
	router, clock := setupTestRouter(t)

	clock.Advance(time.Hour)

	payload := map[string]any{
		"slots": [][]int{{1, 9, 17}, {2}, {3, 11}, {4}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/api/spec", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Slots     [][]int   `json:"slots"`
		UpdatedAt time.Time `json:"updatedAt"`
		Message   string    `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Message == "" {
		t.Fatalf("expected success message, got empty string")
	}
	if len(body.Slots) != 4 || len(body.Slots[0]) != 3 {
		t.Fatalf("unexpected slots: %v", body.Slots)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutSpecValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	payloads := []map[string]any{
		{"slots": [][]int{}},
		{"slots": [][]int{{1}, {}}},
		{"slots": [][]int{{0}}},
	}

	for _, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}

		req := httptest.NewRequest(http.MethodPut, "/api/spec", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400 for %v, got %d", payload, rec.Code)
		}
	}
}

func TestBuildPlanEndpointSuccess(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/plan", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Total           int     `json:"total"`
		Columns         []int   `json:"columns"`
		ColumnsNeeded   int     `json:"columnsNeeded"`
		StandardsColumn int     `json:"standardsColumn"`
		Combinations    [][]int `json:"combinations"`
		Transfers       []struct {
			SourceWell      int    `json:"sourceWell"`
			SourceName      string `json:"sourceName"`
			DestinationWell int    `json:"destinationWell"`
			DestinationName string `json:"destinationName"`
			Volume          string `json:"volume"`
		} `json:"transfers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Total != 16 {
		t.Fatalf("expected total 16, got %d", body.Total)
	}
	if body.ColumnsNeeded != 2 {
		t.Fatalf("expected 2 columns, got %d", body.ColumnsNeeded)
	}
	if body.StandardsColumn != 3 {
		t.Fatalf("expected standards column 3, got %d", body.StandardsColumn)
	}
	if len(body.Combinations) != 16 {
		t.Fatalf("expected 16 combinations, got %d", len(body.Combinations))
	}
	if len(body.Transfers) != 64 {
		t.Fatalf("expected 64 transfer steps, got %d", len(body.Transfers))
	}
	first := body.Transfers[0]
	if first.SourceWell != 2 || first.SourceName != "B1" || first.DestinationWell != 1 || first.DestinationName != "A1" {
		t.Fatalf("unexpected first transfer: %+v", first)
	}
	if first.Volume != "2" {
		t.Fatalf("expected default volume 2, got %s", first.Volume)
	}
}

func TestBuildPlanEndpointCustomVolume(t *testing.T) {
	router, _ := setupTestRouter(t)

	data := []byte(`{"transferVolume": "7.5"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/plan", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Transfers []struct {
			Volume string `json:"volume"`
		} `json:"transfers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Transfers) == 0 || body.Transfers[0].Volume != "7.5" {
		t.Fatalf("expected volume 7.5, got %+v", body.Transfers)
	}
}

func TestBuildPlanEndpointPlateOverflow(t *testing.T) {
	router, _ := setupTestRouter(t)

	// 3 slots x 5 wells = 125 combinations, more than a 96-well plate
	slots := [][]int{
		{1, 2, 3, 4, 5},
		{9, 10, 11, 12, 13},
		{17, 18, 19, 20, 21},
	}
	data, err := json.Marshal(map[string]any{"slots": slots})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	putReq := httptest.NewRequest(http.MethodPut, "/api/spec", bytes.NewReader(data))
	putReq.Header.Set("Content-Type", "application/json")
	putRec := httptest.NewRecorder()
	router.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for spec update, got %d", putRec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/plan", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}

	var body struct {
		Suggestion string `json:"suggestion"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected suggestion to be populated")
	}
}

func TestBuildPlanEndpointRejectsZeroVolume(t *testing.T) {
	router, _ := setupTestRouter(t)

	data := []byte(`{"transferVolume": "0"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/plan", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for zero volume, got %d", rec.Code)
	}
}

func TestRotationEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	data := []byte(`{"dispenseVolume": "12", "wellVolume": "100", "destinations": 20}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rotation", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		DispensesPerWell int `json:"dispensesPerWell"`
		ReservoirWells   int `json:"reservoirWells"`
		Steps            []struct {
			ReservoirWell   int `json:"reservoirWell"`
			DestinationWell int `json:"destinationWell"`
		} `json:"steps"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.DispensesPerWell != 8 {
		t.Fatalf("expected 8 dispenses per well, got %d", body.DispensesPerWell)
	}
	if body.ReservoirWells != 3 {
		t.Fatalf("expected 3 reservoir wells, got %d", body.ReservoirWells)
	}
	if len(body.Steps) != 20 {
		t.Fatalf("expected 20 steps, got %d", len(body.Steps))
	}
	if last := body.Steps[19]; last.ReservoirWell != 3 || last.DestinationWell != 20 {
		t.Fatalf("unexpected last step: %+v", last)
	}
}

func TestRotationEndpointRejectsInvalidInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	payloads := []string{
		`{"dispenseVolume": "200", "wellVolume": "100", "destinations": 5}`,
		`{"dispenseVolume": "1", "wellVolume": "100", "destinations": 100000000}`,
	}
	for _, payload := range payloads {
		req := httptest.NewRequest(http.MethodPost, "/api/rotation", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400 for %s, got %d", payload, rec.Code)
		}
	}
}

func TestCherrypickEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	doc := strings.Join([]string{
		"source_well,destination_well,volume",
		"A1,B2,12.5",
		"C3,D4,7",
	}, "\n")
	req := httptest.NewRequest(http.MethodPost, "/api/cherrypick", strings.NewReader(doc))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Steps []struct {
			SourceWell      string `json:"sourceWell"`
			DestinationWell string `json:"destinationWell"`
			Volume          string `json:"volume"`
		} `json:"steps"`
		Count       int    `json:"count"`
		TotalVolume string `json:"totalVolume"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Count != 2 {
		t.Fatalf("expected 2 steps, got %d", body.Count)
	}
	if body.TotalVolume != "19.5" {
		t.Fatalf("expected total volume 19.5, got %s", body.TotalVolume)
	}
	if body.Steps[0].SourceWell != "A1" || body.Steps[0].Volume != "12.5" {
		t.Fatalf("unexpected first step: %+v", body.Steps[0])
	}
}

func TestCherrypickEndpointRejectsBadTable(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cherrypick", strings.NewReader("not,a,table"))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/plan", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got == "" {
		t.Fatalf("expected X-Request-ID header to be generated")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	warm := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	router.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "plate_planner_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
