package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biofoundry/plate-planner/internal/cherrypick"
	"github.com/biofoundry/plate-planner/internal/layout"
	"github.com/biofoundry/plate-planner/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// maxCherrypickBody caps CSV uploads at 1 MiB.
const maxCherrypickBody = 1 << 20

// Handler wires planner and storage dependencies into HTTP handlers.
type Handler struct {
	planner        layout.Planner
	storage        storage.Storage
	transferVolume decimal.Decimal

	clock func() time.Time

	mu            sync.RWMutex
	specUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithTransferVolume sets the default per-source transfer volume used
// when a plan request does not specify one.
func WithTransferVolume(volume decimal.Decimal) HandlerOption {
	return func(h *Handler) {
		h.transferVolume = volume
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(planner layout.Planner, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		planner:        planner,
		storage:        store,
		transferVolume: decimal.NewFromInt(2),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.specUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSpec(w http.ResponseWriter, r *http.Request) {
	_ = r
	spec, err := h.storage.GetSpec()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	geom, err := h.storage.GetGeometry()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, specResponse{
		Slots:     spec.Slots,
		Geometry:  newGeometryPayload(geom),
		UpdatedAt: h.currentSpecUpdatedAt(),
	})
}

func (h *Handler) handlePutSpec(w http.ResponseWriter, r *http.Request) {
	var req specRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Slots) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid spec", "slots must contain at least one slot")
		return
	}

	if err := h.storage.SetSpec(layout.Spec{Slots: req.Slots}); err != nil {
		if errors.Is(err, layout.ErrInvalidSpec) {
			writeError(w, http.StatusBadRequest, "Invalid spec", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	if req.Geometry != nil {
		if err := h.storage.SetGeometry(req.Geometry.toGeometry()); err != nil {
			if errors.Is(err, layout.ErrInvalidGeometry) {
				writeError(w, http.StatusBadRequest, "Invalid geometry", err.Error())
				return
			}
			writeInternalError(w, err)
			return
		}
	}

	h.markSpecUpdated()

	spec, err := h.storage.GetSpec()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	geom, err := h.storage.GetGeometry()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, specResponse{
		Slots:     spec.Slots,
		Geometry:  newGeometryPayload(geom),
		UpdatedAt: h.currentSpecUpdatedAt(),
		Message:   "Combination spec updated successfully",
	})
}

func (h *Handler) handleBuildPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
			return
		}
	}

	volume := h.transferVolume
	if req.TransferVolume != nil {
		volume = *req.TransferVolume
	}

	spec, err := h.storage.GetSpec()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	geom, err := h.storage.GetGeometry()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	start := time.Now()
	plan, planErr := h.planner.BuildPlan(spec, geom)
	elapsed := time.Since(start)

	if planErr != nil {
		observePlanOutcome("error")
		switch {
		case errors.Is(planErr, layout.ErrInvalidSpec), errors.Is(planErr, layout.ErrInvalidGeometry):
			writeError(w, http.StatusBadRequest, "Invalid request", planErr.Error())
		case errors.Is(planErr, layout.ErrPlateOverflow):
			suggestion := fmt.Sprintf("Reduce the combination count below %d wells or split the run across plates", geom.Wells())
			writeError(w, http.StatusUnprocessableEntity, "Plan does not fit the plate", planErr.Error(), suggestion)
		case errors.Is(planErr, layout.ErrColumnOverlap):
			writeError(w, http.StatusUnprocessableEntity, "Plan does not fit the plate", planErr.Error(),
				"Move the template columns or widen the gap before the standards column")
		case errors.Is(planErr, layout.ErrSpecTooLarge):
			writeError(w, http.StatusUnprocessableEntity, "Spec too large", planErr.Error())
		default:
			writeInternalError(w, planErr)
		}
		return
	}

	steps, err := plan.Transfers(volume)
	if err != nil {
		observePlanOutcome("error")
		if errors.Is(err, layout.ErrInvalidVolume) {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}
	observePlanOutcome("ok")

	transfers := make([]transferPayload, len(steps))
	for i, step := range steps {
		sourceName, err := geom.WellName(step.SourceWell)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		destName, err := geom.WellName(step.DestinationWell)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		transfers[i] = transferPayload{
			SourceWell:      step.SourceWell,
			SourceName:      sourceName,
			DestinationWell: step.DestinationWell,
			DestinationName: destName,
			Volume:          step.Volume,
		}
	}

	combos := make([][]int, len(plan.Combinations))
	for i, combo := range plan.Combinations {
		combos[i] = combo
	}

	writeJSON(w, http.StatusOK, planResponse{
		Total:             plan.Total,
		Columns:           plan.Columns,
		ColumnsNeeded:     len(plan.Columns),
		StandardsColumn:   plan.StandardsColumn,
		Combinations:      combos,
		Transfers:         transfers,
		CalculationTimeMs: elapsed.Milliseconds(),
	})
}

func (h *Handler) handleRotation(w http.ResponseWriter, r *http.Request) {
	var req rotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	rotation, err := layout.ReservoirRotation(req.DispenseVolume, req.WellVolume, req.Destinations)
	if err != nil {
		if errors.Is(err, layout.ErrInvalidVolume) || errors.Is(err, layout.ErrInvalidCount) {
			writeError(w, http.StatusBadRequest, "Invalid rotation request", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	steps := make([]rotationStepPayload, len(rotation.Steps))
	for i, step := range rotation.Steps {
		steps[i] = rotationStepPayload{
			ReservoirWell:   step.ReservoirWell,
			DestinationWell: step.DestinationWell,
		}
	}

	writeJSON(w, http.StatusOK, rotationResponse{
		DispensesPerWell: rotation.DispensesPerWell,
		ReservoirWells:   rotation.ReservoirWells,
		Steps:            steps,
	})
}

func (h *Handler) handleCherrypick(w http.ResponseWriter, r *http.Request) {
	geom, err := h.storage.GetGeometry()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	picks, err := cherrypick.Parse(http.MaxBytesReader(w, r.Body, maxCherrypickBody), geom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cherrypick table", err.Error())
		return
	}

	steps := make([]pickPayload, len(picks))
	for i, pick := range picks {
		steps[i] = pickPayload{
			SourceWell:      pick.SourceWell,
			DestinationWell: pick.DestinationWell,
			Volume:          pick.Volume,
		}
	}

	writeJSON(w, http.StatusOK, cherrypickResponse{
		Steps:       steps,
		Count:       len(steps),
		TotalVolume: cherrypick.TotalVolume(picks),
	})
}

func (h *Handler) currentSpecUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.specUpdatedAt
}

func (h *Handler) markSpecUpdated() {
	h.mu.Lock()
	h.specUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type geometryPayload struct {
	WellsPerColumn  int   `json:"wellsPerColumn"`
	Columns         int   `json:"columns"`
	FirstColumn     int   `json:"firstColumn"`
	TemplateColumns []int `json:"templateColumns,omitempty"`
}

func newGeometryPayload(g layout.Geometry) *geometryPayload {
	return &geometryPayload{
		WellsPerColumn:  g.WellsPerColumn,
		Columns:         g.Columns,
		FirstColumn:     g.FirstColumn,
		TemplateColumns: g.TemplateColumns,
	}
}

func (p *geometryPayload) toGeometry() layout.Geometry {
	return layout.Geometry{
		WellsPerColumn:  p.WellsPerColumn,
		Columns:         p.Columns,
		FirstColumn:     p.FirstColumn,
		TemplateColumns: p.TemplateColumns,
	}
}

type specRequest struct {
	Slots    [][]int          `json:"slots"`
	Geometry *geometryPayload `json:"geometry,omitempty"`
}

type specResponse struct {
	Slots     [][]int          `json:"slots"`
	Geometry  *geometryPayload `json:"geometry"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Message   string           `json:"message,omitempty"`
}

type planRequest struct {
	TransferVolume *decimal.Decimal `json:"transferVolume,omitempty"`
}

type transferPayload struct {
	SourceWell      int             `json:"sourceWell"`
	SourceName      string          `json:"sourceName"`
	DestinationWell int             `json:"destinationWell"`
	DestinationName string          `json:"destinationName"`
	Volume          decimal.Decimal `json:"volume"`
}

type planResponse struct {
	Total             int               `json:"total"`
	Columns           []int             `json:"columns"`
	ColumnsNeeded     int               `json:"columnsNeeded"`
	StandardsColumn   int               `json:"standardsColumn"`
	Combinations      [][]int           `json:"combinations"`
	Transfers         []transferPayload `json:"transfers"`
	CalculationTimeMs int64             `json:"calculationTimeMs"`
}

type rotationRequest struct {
	DispenseVolume decimal.Decimal `json:"dispenseVolume"`
	WellVolume     decimal.Decimal `json:"wellVolume"`
	Destinations   int             `json:"destinations"`
}

type rotationStepPayload struct {
	ReservoirWell   int `json:"reservoirWell"`
	DestinationWell int `json:"destinationWell"`
}

type rotationResponse struct {
	DispensesPerWell int                   `json:"dispensesPerWell"`
	ReservoirWells   int                   `json:"reservoirWells"`
	Steps            []rotationStepPayload `json:"steps"`
}

type pickPayload struct {
	SourceWell      string          `json:"sourceWell"`
	DestinationWell string          `json:"destinationWell"`
	Volume          decimal.Decimal `json:"volume"`
}

type cherrypickResponse struct {
	Steps       []pickPayload   `json:"steps"`
	Count       int             `json:"count"`
	TotalVolume decimal.Decimal `json:"totalVolume"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
