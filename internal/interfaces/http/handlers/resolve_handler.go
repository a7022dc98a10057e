package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/interfaces/http/dto"
	"opensilex-backend/internal/resolution"
)

const defaultUnknownLabel = "uris"

// ResolveHandler partitions candidate URIs into existing and unknown ones.
type ResolveHandler struct {
	base
	resolver *resolution.Resolver
}

func NewResolveHandler(resolver *resolution.Resolver, prefixes *rdf.Prefixes, maxBody int64, logger *zap.Logger) *ResolveHandler {
	return &ResolveHandler{
		base:     newBase(prefixes, maxBody, logger, "ResolveHandler"),
		resolver: resolver,
	}
}

// Resolve handles POST /api/v1/resources/resolve. With strict=true any
// unknown candidate fails the request with 400 naming every unknown URI.
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	strict, err := boolParam(r, "strict")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req dto.ResolveRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	candidates, err := rdf.NewCandidateURISet(h.prefixes, req.URIs...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	strategy, err := h.strategy(&req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	label := req.Label
	if label == "" {
		label = defaultUnknownLabel
	}

	q := h.resolver.Query(strategy, candidates)
	resp := dto.ResolveResponse{Strategy: strategy.Name(), Known: []dto.MatchResponse{}, Unknown: []string{}}

	if strict {
		known, err := resolution.GetResults(ctx, q, h.toResponse, label)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Known = known
		writeJSON(w, http.StatusOK, resp, h.logger)
		return
	}

	unknown, err := q.Unknown(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, u := range unknown {
		resp.Unknown = append(resp.Unknown, u.String())
	}
	for m, err := range resolution.ResultsAsStream(ctx, q, h.toResponse) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Known = append(resp.Known, m)
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

func (h *ResolveHandler) strategy(req *dto.ResolveRequest) (resolution.Strategy, error) {
	switch req.Strategy {
	case "graphs":
		graphs := make(map[rdf.URI]rdf.Graph, len(req.Graphs))
		for class, graph := range req.Graphs {
			c, err := h.prefixes.Normalize(class)
			if err != nil {
				return nil, err
			}
			g, err := h.prefixes.Normalize(graph)
			if err != nil {
				return nil, err
			}
			graphs[c] = g
		}
		return resolution.ByGraphMap(graphs), nil
	case "classes":
		classes := make([]rdf.Class, 0, len(req.Classes))
		for _, cr := range req.Classes {
			class, err := h.class(cr)
			if err != nil {
				return nil, err
			}
			classes = append(classes, class)
		}
		return resolution.ByClassList(classes...), nil
	default:
		return resolution.AnyGraph(), nil
	}
}

func (h *ResolveHandler) class(cr dto.ClassRequest) (rdf.Class, error) {
	var class rdf.Class
	var err error
	if class.URI, err = h.prefixes.Normalize(cr.URI); err != nil {
		return class, err
	}
	if cr.Graph != "" {
		if class.Graph, err = h.prefixes.Normalize(cr.Graph); err != nil {
			return class, err
		}
	}
	for _, f := range cr.Fields {
		field, err := h.prefixes.Normalize(f)
		if err != nil {
			return class, err
		}
		class.Fields = append(class.Fields, field)
	}
	return class, nil
}

func (h *ResolveHandler) toResponse(m resolution.Match) (dto.MatchResponse, error) {
	out := dto.MatchResponse{
		URI:   m.URI.String(),
		Type:  m.Type.String(),
		Graph: m.Graph.String(),
	}
	if len(m.Fields) > 0 {
		out.Fields = make(map[string]string, len(m.Fields))
		for field, value := range m.Fields {
			out.Fields[h.prefixes.Short(field)] = sparql.Lexical(value)
		}
	}
	return out, nil
}
