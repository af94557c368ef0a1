// Package handlers provides HTTP handlers for the claims API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/api/middleware"
	"github.com/andesalud/hiv-auth/internal/domain/claims"
	"github.com/andesalud/hiv-auth/internal/domain/cycle"
	"github.com/andesalud/hiv-auth/internal/observability/metrics"
	"github.com/andesalud/hiv-auth/pkg/workerpool"
)

// troquelSystem identifies the troquel coding system in troquel payloads.
const troquelSystem = "https://www.andesalud.com.ar/troquel"

// ClaimsHandler serves the pharmacy-claim endpoints.
type ClaimsHandler struct {
	classifier *cycle.Classifier
	resolver   *cycle.Resolver
	history    cycle.DispensingHistory
	audit      cycle.AuditTrail // nil disables the audit trail
	pool       *workerpool.Pool // nil disables batch classification
	metrics    *metrics.Metrics // nil disables metrics
	logger     *zap.Logger
}

// NewClaimsHandler creates the handler set.
func NewClaimsHandler(
	classifier *cycle.Classifier,
	resolver *cycle.Resolver,
	history cycle.DispensingHistory,
	audit cycle.AuditTrail,
	pool *workerpool.Pool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ClaimsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsHandler{
		classifier: classifier,
		resolver:   resolver,
		history:    history,
		audit:      audit,
		pool:       pool,
		metrics:    m,
		logger:     logger,
	}
}

// Register mounts the claim endpoints on r. The route names, including
// GetFristTicket, are the published contract of the upstream workflow and
// are kept verbatim. authed wraps the routes that require credentials.
func (h *ClaimsHandler) Register(r chi.Router, authed func(http.Handler) http.Handler) {
	r.Get("/", h.Index)
	r.Get("/GetFristTicket", h.GetFirstTicket)
	r.Get("/GetTroquel", h.GetTroquel)

	r.Group(func(r chi.Router) {
		r.Use(authed)
		r.Get("/hiv/check", h.CheckHIV)
		r.Get("/ciclo", h.ClassifyCycle)
		r.Post("/ciclo/batch", h.ClassifyCycleBatch)
		r.Get("/sustitucion", h.ResolveSubstitution)
	})
}

// Index handles GET / with the endpoint listing.
func (h *ClaimsHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string][]string{
		"endpoints": {
			"/GetFristTicket",
			"/GetTroquel",
			"/hiv/check",
			"/ciclo",
			"/ciclo/batch",
			"/sustitucion",
		},
	})
}

// GetFirstTicket handles GET /GetFristTicket?id=.
func (h *ClaimsHandler) GetFirstTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.URL.Query().Get("id")
	if id == "" {
		h.jsonError(w, "query parameter id is required", http.StatusBadRequest)
		return
	}

	ticket, err := h.history.FindTicket(ctx, id)
	if err != nil {
		h.domainError(w, r, err, "No se encontró el ticket")
		return
	}

	if h.metrics != nil {
		h.metrics.TicketLookups.Inc()
	}
	h.writeJSON(w, http.StatusOK, ticket)
}

// Coding is one entry of a troquel coding list.
type Coding struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

// Code is the coded medication payload.
type Code struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text"`
}

// TroquelResponse is the dispensed-medication payload for a ticket.
type TroquelResponse struct {
	Code Code `json:"code"`
}

// GetTroquel handles GET /GetTroquel?id=&socio=.
func (h *ClaimsHandler) GetTroquel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.URL.Query().Get("id")
	socio := r.URL.Query().Get("socio")
	if id == "" || socio == "" {
		h.jsonError(w, "query parameters id and socio are required", http.StatusBadRequest)
		return
	}

	events, err := h.history.FindRecipes(ctx, id, socio)
	if err != nil {
		h.domainError(w, r, err, "No se encontró el ticket")
		return
	}
	if len(events) == 0 {
		h.jsonError(w, "No hay recetas para el ticket", http.StatusNotFound)
		return
	}

	// First event in the stable ordering is the dispensed medication.
	first := events[0]
	h.writeJSON(w, http.StatusOK, TroquelResponse{
		Code: Code{
			Coding: []Coding{{System: troquelSystem, Code: first.Troquel}},
			Text:   first.Descripcion,
		},
	})
}

// HIVCheckResponse is the registry predicate payload.
type HIVCheckResponse struct {
	Presentacion string `json:"presentacion"`
	EsHIV        bool   `json:"es_hiv"`
}

// CheckHIV handles GET /hiv/check?presentacion=.
func (h *ClaimsHandler) CheckHIV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presentacion := r.URL.Query().Get("presentacion")
	if presentacion == "" {
		h.jsonError(w, "query parameter presentacion is required", http.StatusBadRequest)
		return
	}

	esHIV, err := h.classifier.IsHIVMedication(ctx, presentacion)
	if err != nil {
		h.domainError(w, r, err, "Error consultando base")
		return
	}

	if h.metrics != nil {
		h.metrics.HIVChecks.WithLabelValues(fmt.Sprintf("%t", esHIV)).Inc()
	}
	h.writeJSON(w, http.StatusOK, HIVCheckResponse{Presentacion: presentacion, EsHIV: esHIV})
}

// CycleResponse is the treatment-cycle verdict payload.
type CycleResponse struct {
	Troquel     string `json:"troquel"`
	Socio       string `json:"socio"`
	Ciclo       int    `json:"ciclo"`
	Descripcion string `json:"descripcion"`
}

// ClassifyCycle handles GET /ciclo?troquel=&socio=.
func (h *ClaimsHandler) ClassifyCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("claims-handler")
	ctx, span := tracer.Start(ctx, "classify_cycle_request")
	defer span.End()

	troquel := r.URL.Query().Get("troquel")
	socio := r.URL.Query().Get("socio")
	if troquel == "" || socio == "" {
		h.jsonError(w, "query parameters troquel and socio are required", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("troquel", troquel),
		attribute.String("socio", socio),
	)

	start := time.Now()
	verdict, err := h.classifier.Classify(ctx, troquel, socio)
	if err != nil {
		h.domainError(w, r, err, "Error consultando base")
		return
	}

	if h.metrics != nil {
		h.metrics.CycleClassifications.WithLabelValues(verdict.String()).Inc()
		h.metrics.ClassificationDuration.Observe(time.Since(start).Seconds())
	}

	h.recordAudit(ctx, troquel, socio, verdict)

	h.writeJSON(w, http.StatusOK, CycleResponse{
		Troquel:     troquel,
		Socio:       socio,
		Ciclo:       int(verdict),
		Descripcion: verdict.String(),
	})
}

// BatchCycleRequest is the body of POST /ciclo/batch.
type BatchCycleRequest struct {
	Items []BatchCycleItem `json:"items"`
}

// BatchCycleItem is one (troquel, socio) pair to classify.
type BatchCycleItem struct {
	Troquel string `json:"troquel"`
	Socio   string `json:"socio"`
}

// BatchCycleResult is the per-item outcome.
type BatchCycleResult struct {
	Troquel     string `json:"troquel"`
	Socio       string `json:"socio"`
	Ciclo       int    `json:"ciclo,omitempty"`
	Descripcion string `json:"descripcion,omitempty"`
	Error       string `json:"error,omitempty"`
}

// maxBatchItems bounds one batch request.
const maxBatchItems = 100

type cycleTask struct {
	index   int
	troquel string
	socio   string
	out     chan<- cycleTaskResult
}

type cycleTaskResult struct {
	index   int
	verdict cycle.Verdict
	err     error
}

// CycleWorker returns the worker function driving batch classification.
func CycleWorker(classifier *cycle.Classifier) workerpool.WorkerFunc {
	return func(ctx context.Context, task *workerpool.Task) *workerpool.Result {
		item := task.Payload.(*cycleTask)
		verdict, err := classifier.Classify(ctx, item.troquel, item.socio)
		item.out <- cycleTaskResult{index: item.index, verdict: verdict, err: err}
		if err != nil {
			return &workerpool.Result{TaskID: task.ID, Error: err}
		}
		return &workerpool.Result{TaskID: task.ID, Success: true}
	}
}

// ClassifyCycleBatch handles POST /ciclo/batch, fanning the items out over
// the worker pool and preserving request order in the response.
func (h *ClaimsHandler) ClassifyCycleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.pool == nil {
		h.jsonError(w, "batch classification is not enabled", http.StatusServiceUnavailable)
		return
	}

	var req BatchCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Items) == 0 {
		h.jsonError(w, "items is required", http.StatusBadRequest)
		return
	}
	if len(req.Items) > maxBatchItems {
		h.jsonError(w, fmt.Sprintf("at most %d items per batch", maxBatchItems), http.StatusBadRequest)
		return
	}
	for _, item := range req.Items {
		if item.Troquel == "" || item.Socio == "" {
			h.jsonError(w, "each item requires troquel and socio", http.StatusBadRequest)
			return
		}
	}

	out := make(chan cycleTaskResult, len(req.Items))
	submitted := 0
	results := make([]BatchCycleResult, len(req.Items))

	for i, item := range req.Items {
		results[i] = BatchCycleResult{Troquel: item.Troquel, Socio: item.Socio}
		task := &workerpool.Task{
			ID:      uuid.New().String(),
			Payload: &cycleTask{index: i, troquel: item.Troquel, socio: item.Socio, out: out},
			Context: ctx,
		}
		if err := h.pool.Submit(task); err != nil {
			results[i].Error = "servicio saturado, reintente"
			continue
		}
		submitted++
	}

	for n := 0; n < submitted; n++ {
		select {
		case <-ctx.Done():
			h.jsonError(w, "request cancelled", http.StatusServiceUnavailable)
			return
		case res := <-out:
			if res.err != nil {
				results[res.index].Error = errorKind(res.err)
				continue
			}
			results[res.index].Ciclo = int(res.verdict)
			results[res.index].Descripcion = res.verdict.String()
			if h.metrics != nil {
				h.metrics.CycleClassifications.WithLabelValues(res.verdict.String()).Inc()
			}
			h.recordAudit(ctx, results[res.index].Troquel, results[res.index].Socio, res.verdict)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// ResolveSubstitution handles GET /sustitucion?troquel=.
func (h *ClaimsHandler) ResolveSubstitution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	troquel := r.URL.Query().Get("troquel")
	if troquel == "" {
		h.jsonError(w, "query parameter troquel is required", http.StatusBadRequest)
		return
	}

	outcome, err := h.resolver.Resolve(ctx, troquel)
	if err != nil {
		if h.metrics != nil && errors.Is(err, claims.ErrNotFound) {
			h.metrics.SubstitutionLookups.WithLabelValues("not_found").Inc()
		}
		h.domainError(w, r, err, "No existe regla de sustitución para el troquel")
		return
	}

	if h.metrics != nil {
		result := "not_substitutable"
		if outcome.Sustituible {
			result = "substitutable"
		}
		h.metrics.SubstitutionLookups.WithLabelValues(result).Inc()
	}
	h.writeJSON(w, http.StatusOK, outcome)
}

// recordAudit writes the verdict audit record. Failures are logged, never
// surfaced: the classification result stands on its own.
func (h *ClaimsHandler) recordAudit(ctx context.Context, troquel, socio string, verdict cycle.Verdict) {
	if h.audit == nil {
		return
	}

	rec := &cycle.VerdictRecord{
		ID:           uuid.New().String(),
		Troquel:      troquel,
		Socio:        socio,
		Verdict:      verdict,
		Descripcion:  verdict.String(),
		RequestID:    middleware.GetRequestID(ctx),
		ClassifiedAt: time.Now().UTC(),
	}
	if err := h.audit.RecordVerdict(ctx, rec); err != nil {
		h.logger.Error("verdict audit write failed",
			zap.String("troquel", troquel),
			zap.String("socio", socio),
			zap.Error(err))
	}
}

// domainError maps an error kind to its status code. RetrievalError and
// unknown errors are both 500, but retrieval failures keep a distinct body
// so a backend outage is never mistaken for a negative answer.
func (h *ClaimsHandler) domainError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, claims.ErrNotFound):
		h.jsonError(w, notFoundMsg, http.StatusNotFound)
	case errors.Is(err, claims.ErrValidation):
		h.jsonError(w, "El número de socio no coincide con el ticket", http.StatusBadRequest)
	case errors.Is(err, claims.ErrRetrieval):
		h.logger.Error("store retrieval failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.jsonError(w, "Error consultando base", http.StatusInternalServerError)
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, claims.ErrNotFound):
		return "not_found"
	case errors.Is(err, claims.ErrValidation):
		return "validation"
	case errors.Is(err, claims.ErrRetrieval):
		return "retrieval"
	default:
		return "internal"
	}
}

func (h *ClaimsHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encode failed", zap.Error(err))
	}
}

func (h *ClaimsHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
