package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"opensilex-backend/internal/domain/ontology"
	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/infrastructure/cache"
	"opensilex-backend/internal/interfaces/http/dto"
	ontocache "opensilex-backend/internal/ontology"
)

// OntologyHandler serves cached ontology descriptors and cache control.
type OntologyHandler struct {
	base
	cache       *ontocache.Cache
	invalidator *ontocache.Invalidator
}

func NewOntologyHandler(c *ontocache.Cache, invalidator *ontocache.Invalidator, prefixes *rdf.Prefixes, logger *zap.Logger) *OntologyHandler {
	return &OntologyHandler{
		base:        newBase(prefixes, 0, logger, "OntologyHandler"),
		cache:       c,
		invalidator: invalidator,
	}
}

// SubClasses handles GET /api/v1/ontology/subclasses?parent=&pattern=&ignoreRoot=
func (h *OntologyHandler) SubClasses(w http.ResponseWriter, r *http.Request) {
	parent, err := h.uriParam(r, "parent")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ignoreRoot, err := boolParam(r, "ignoreRoot")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	tree, err := h.cache.SearchSubClassesOf(r.Context(), parent, r.URL.Query().Get("pattern"), ignoreRoot)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := dto.ClassTreeResponse{Roots: []*dto.ClassNodeResponse{}, Size: tree.Size()}
	for _, root := range tree.Roots {
		resp.Roots = append(resp.Roots, classNode(root))
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

func classNode(n *ontology.ClassNode) *dto.ClassNodeResponse {
	out := &dto.ClassNodeResponse{URI: n.URI.String(), Labels: n.Labels}
	if n.Parent != nil {
		out.Parent = n.Parent.String()
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, classNode(c))
	}
	return out
}

// Properties handles GET /api/v1/ontology/properties?domain=
func (h *OntologyHandler) Properties(w http.ResponseWriter, r *http.Request) {
	domain, err := h.uriParam(r, "domain")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.cache.GetProperties(r.Context(), domain)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.PropertiesResponse{
		Domain:           list.Domain.String(),
		DataProperties:   properties(list.OfKind(ontology.DataProperty)),
		ObjectProperties: properties(list.OfKind(ontology.ObjectProperty)),
	}, h.logger)
}

func properties(in []ontology.Property) []dto.PropertyResponse {
	out := make([]dto.PropertyResponse, 0, len(in))
	for _, p := range in {
		out = append(out, dto.PropertyResponse{
			URI:    p.URI.String(),
			Domain: p.Domain.String(),
			Range:  p.Range.String(),
			Labels: p.Labels,
		})
	}
	return out
}

// Invalidate handles POST /api/v1/ontology/cache/invalidate?scope=classes|properties
func (h *OntologyHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	scope, err := ontocache.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.invalidator.Invalidate(r.Context(), scope); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.InvalidateResponse{Scope: string(scope)}, h.logger)
}

// Stats handles GET /api/v1/ontology/cache/stats
func (h *OntologyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s := h.cache.Stats()
	writeJSON(w, http.StatusOK, dto.CacheStatsResponse{
		TTL:         h.cache.TTL().String(),
		Classes:     tableStats(s.Classes),
		Properties:  tableStats(s.Properties),
		Populations: s.Populations,
		Failures:    s.Failures,
	}, h.logger)
}

func tableStats(s cache.Stats) dto.CacheTableStats {
	return dto.CacheTableStats{
		Entries: s.Items,
		Hits:    s.Hits,
		Misses:  s.Misses,
		Expired: s.Expired,
		Dropped: s.Dropped,
		HitRate: s.HitRate,
	}
}
