package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/interfaces/http/dto"
	"opensilex-backend/internal/repository"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// readinessProbe asks whether any triple exists; only reachability matters.
var readinessProbe = &sparql.Ask{Where: sparql.Group{
	sparql.Triple{Subject: sparql.V("s"), Predicate: sparql.V("p"), Object: sparql.V("o")},
}}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	triples repository.TripleReader
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewHealthHandler(triples repository.TripleReader, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		triples: triples,
		timeout: 5 * time.Second,
		now:     time.Now,
		logger:  logger.Named("HealthHandler"),
	}
}

// Live handles GET /health.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.HealthResponse{Status: StatusHealthy, Timestamp: h.now().UTC()}, h.logger)
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: StatusHealthy, Checks: map[string]string{"triple_store": StatusHealthy}}
	status := http.StatusOK
	if _, err := h.triples.Ask(ctx, readinessProbe); err != nil {
		h.logger.Warn("Triple store readiness check failed", zap.Error(err))
		resp.Status = StatusUnhealthy
		resp.Checks["triple_store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	resp.Timestamp = h.now().UTC()
	writeJSON(w, status, resp, h.logger)
}
