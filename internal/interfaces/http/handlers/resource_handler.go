package handlers

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/interfaces/http/dto"
	"opensilex-backend/internal/resources"
)

// ResourceHandler registers resources in both stores.
type ResourceHandler struct {
	base
	service *resources.Service
}

func NewResourceHandler(service *resources.Service, prefixes *rdf.Prefixes, maxBody int64, logger *zap.Logger) *ResourceHandler {
	return &ResourceHandler{
		base:    newBase(prefixes, maxBody, logger, "ResourceHandler"),
		service: service,
	}
}

// Register handles POST /api/v1/resources.
func (h *ResourceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterResourceRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var reg resources.Registration
	for _, f := range []struct {
		raw string
		dst *rdf.URI
	}{
		{req.URI, &reg.URI},
		{req.Type, &reg.Type},
		{req.Graph, &reg.Graph},
	} {
		u, err := h.prefixes.Normalize(f.raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		*f.dst = u
	}
	reg.Label = req.Label
	reg.Metadata = req.Metadata

	doc, err := h.service.Register(r.Context(), reg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/resources?uri="+url.QueryEscape(doc.URI))
	writeJSON(w, http.StatusCreated, resourceResponse(doc), h.logger)
}

// Get handles GET /api/v1/resources?uri=
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.uriParam(r, "uri")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	doc, err := h.service.Get(r.Context(), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resourceResponse(doc), h.logger)
}

// Remove handles DELETE /api/v1/resources?uri=
func (h *ResourceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	u, err := h.uriParam(r, "uri")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Remove(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func resourceResponse(doc *resources.Document) dto.ResourceResponse {
	return dto.ResourceResponse{
		URI:       doc.URI,
		Type:      doc.Type,
		Graph:     doc.Graph,
		Label:     doc.Label,
		Metadata:  doc.Metadata,
		CreatedAt: doc.CreatedAt,
	}
}
