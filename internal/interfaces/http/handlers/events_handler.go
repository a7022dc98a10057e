package handlers

import (
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/messaging"
	ontocache "opensilex-backend/internal/ontology"
)

// EventsHandler receives cache invalidations announced by peer instances.
// EventBridge delivers them through an API destination.
type EventsHandler struct {
	base
	invalidator *ontocache.Invalidator
	origin      string
}

// NewEventsHandler creates the handler. origin identifies this instance;
// events carrying it are ignored.
func NewEventsHandler(invalidator *ontocache.Invalidator, origin string, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		base:        newBase(nil, 0, logger, "EventsHandler"),
		invalidator: invalidator,
		origin:      origin,
	}
}

// OntologyCache handles POST /api/v1/events/ontology-cache.
func (h *EventsHandler) OntologyCache(w http.ResponseWriter, r *http.Request) {
	var event events.CloudWatchEvent
	if err := h.decodeEvent(w, r, &event); err != nil {
		h.fail(w, r, err)
		return
	}

	detail, remote, err := messaging.DecodeInvalidation(event.DetailType, event.Detail, h.origin)
	if err != nil {
		h.fail(w, r, apperrors.Validation(apperrors.CodeInvalidInput, "invalid event detail").WithCause(err).WithDetails(err.Error()).Build())
		return
	}
	if !remote {
		h.logger.Debug("Ignoring event",
			zap.String("event_id", event.ID),
			zap.String("detail_type", event.DetailType),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	scope, err := ontocache.ParseScope(detail.Scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.invalidator.Apply(scope); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("Applied peer cache invalidation",
		zap.String("scope", detail.Scope),
		zap.String("origin", detail.Origin),
		zap.String("event_id", detail.EventID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// decodeEvent decodes without rejecting unknown fields, since EventBridge
// envelopes grow over time.
func (h *EventsHandler) decodeEvent(w http.ResponseWriter, r *http.Request, dst *events.CloudWatchEvent) error {
	if err := decodeLenient(w, r, h.maxBody, dst); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid event").WithDetails(err.Error()).WithCause(err).Build()
	}
	return nil
}
