package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cayleygraph/quad"
	"github.com/go-chi/cors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	docmemory "opensilex-backend/internal/infrastructure/documentstore/memory"
	"opensilex-backend/internal/infrastructure/observability"
	triplememory "opensilex-backend/internal/infrastructure/triplestore/memory"
	"opensilex-backend/internal/interfaces/http/dto"
	"opensilex-backend/internal/interfaces/http/handlers"
	"opensilex-backend/internal/ontology"
	"opensilex-backend/internal/resolution"
	"opensilex-backend/internal/resources"
	"opensilex-backend/internal/transaction"
)

const ex = "http://example.org/"

type recordingPublisher struct {
	mu     sync.Mutex
	scopes []string
}

func (p *recordingPublisher) PublishInvalidation(_ context.Context, scope string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scopes = append(p.scopes, scope)
	return nil
}

type testServer struct {
	server    *httptest.Server
	cache     *ontology.Cache
	publisher *recordingPublisher
}

var prefixes = rdf.NewPrefixes(map[string]string{"ex": ex})

func iri(short string) quad.Value { return prefixes.MustNormalize(short).IRI() }

func fact(s, p string, o quad.Value, g string) quad.Quad {
	return quad.Quad{Subject: iri(s), Predicate: iri(p), Object: o, Label: iri(g)}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	triples := triplememory.NewStore(logger)
	require.NoError(t, triples.Load(
		fact("ex:Device", "rdf:type", iri("owl:Class"), "ex:ontology"),
		fact("ex:Sensor", "rdfs:subClassOf", iri("ex:Device"), "ex:ontology"),
		fact("ex:Sensor", "rdfs:label", quad.LangString{Value: "Sensor", Lang: "en"}, "ex:ontology"),
		fact("ex:serial", "rdf:type", iri("owl:DatatypeProperty"), "ex:ontology"),
		fact("ex:serial", "rdfs:domain", iri("ex:Device"), "ex:ontology"),
		fact("ex:hosts", "rdf:type", iri("owl:ObjectProperty"), "ex:ontology"),
		fact("ex:hosts", "rdfs:domain", iri("ex:Sensor"), "ex:ontology"),
		fact("ex:s1", "rdf:type", iri("ex:Sensor"), "ex:g1"),
		fact("ex:s1", "ex:serial", quad.String("SN-1"), "ex:g1"),
	))
	docs := docmemory.NewStore(logger)
	metrics := observability.NewCollector("opensilex")

	coordinator := transaction.NewCoordinator(triples, docs, logger, metrics)
	resolver := resolution.NewResolver(triples, 2, logger, metrics)
	cache := ontology.NewCache(ontology.NewSPARQLDescriptorSource(triples, logger), ontology.Config{TTL: time.Hour}, logger, ontology.WithMetrics(metrics))
	publisher := &recordingPublisher{}
	invalidator := ontology.NewInvalidator(cache, publisher, logger)

	h := Handlers{
		Resolve:   handlers.NewResolveHandler(resolver, prefixes, 0, logger),
		Ontology:  handlers.NewOntologyHandler(cache, invalidator, prefixes, logger),
		Resources: handlers.NewResourceHandler(resources.NewService(coordinator, resolver, logger), prefixes, 0, logger),
		Events:    handlers.NewEventsHandler(invalidator, "self", logger),
		Health:    handlers.NewHealthHandler(triples, logger),
	}
	mux := New(h, Options{
		ServiceName:    "test",
		RequestTimeout: 10 * time.Second,
		Metrics:        metrics,
		CORS:           &cors.Options{AllowedOrigins: []string{"*"}},
	}, logger)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{server: srv, cache: cache, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type errorBody struct {
	Error struct {
		Code     string   `json:"code"`
		Message  string   `json:"message"`
		Details  string   `json:"details"`
		Resource string   `json:"resource"`
		URIs     []string `json:"uris"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestResolve(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, http.MethodPost, "/api/v1/resources/resolve", map[string]any{
		"uris": []string{"ex:s1", "ex:nope", ex + "s1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	body := decode[dto.ResolveResponse](t, data)

	assert.Equal(t, "any", body.Strategy)
	require.Len(t, body.Known, 1)
	assert.Equal(t, ex+"s1", body.Known[0].URI)
	assert.Equal(t, ex+"Sensor", body.Known[0].Type)
	assert.Equal(t, []string{ex + "nope"}, body.Unknown)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestResolveStrategies(t *testing.T) {
	s := newTestServer(t)

	t.Run("graphs", func(t *testing.T) {
		resp, data := s.do(t, http.MethodPost, "/api/v1/resources/resolve", map[string]any{
			"uris":     []string{"ex:s1"},
			"strategy": "graphs",
			"graphs":   map[string]string{"ex:Device": "ex:g2"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		body := decode[dto.ResolveResponse](t, data)
		assert.Empty(t, body.Known, "instance lives in another graph")
		assert.Equal(t, []string{ex + "s1"}, body.Unknown)
	})

	t.Run("classes with fields", func(t *testing.T) {
		resp, data := s.do(t, http.MethodPost, "/api/v1/resources/resolve", map[string]any{
			"uris":     []string{"ex:s1"},
			"strategy": "classes",
			"classes":  []map[string]any{{"uri": "ex:Device", "graph": "ex:g1", "fields": []string{"ex:serial"}}},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
		body := decode[dto.ResolveResponse](t, data)
		require.Len(t, body.Known, 1)
		assert.Equal(t, ex+"g1", body.Known[0].Graph)
		assert.Equal(t, map[string]string{"ex:serial": "SN-1"}, body.Known[0].Fields)
	})
}

func TestResolveStrict(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, http.MethodPost, "/api/v1/resources/resolve?strict=true", map[string]any{
		"uris":  []string{"ex:s1", "ex:ghost", "ex:phantom"},
		"label": "devices",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, data)
	assert.Equal(t, "INVALID_URI_SET", body.Error.Code)
	assert.Equal(t, "devices", body.Error.Message)
	assert.Equal(t, []string{ex + "ghost", ex + "phantom"}, body.Error.URIs)

	resp, data = s.do(t, http.MethodPost, "/api/v1/resources/resolve?strict=true", map[string]any{
		"uris": []string{"ex:s1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Len(t, decode[dto.ResolveResponse](t, data).Known, 1)
}

func TestResolveRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
		body any
		code string
	}{
		{"not json", "/api/v1/resources/resolve", "{", "INVALID_INPUT"},
		{"unknown field", "/api/v1/resources/resolve", `{"uris":["ex:a"],"limit":3}`, "INVALID_INPUT"},
		{"no uris", "/api/v1/resources/resolve", map[string]any{"uris": []string{}}, "VALIDATION_FAILED"},
		{"bad strategy", "/api/v1/resources/resolve", map[string]any{"uris": []string{"ex:a"}, "strategy": "fuzzy"}, "VALIDATION_FAILED"},
		{"relative uri", "/api/v1/resources/resolve", map[string]any{"uris": []string{"relative"}}, "VALIDATION_FAILED"},
		{"illegal character", "/api/v1/resources/resolve", map[string]any{"uris": []string{"ex:a{b}"}}, "VALIDATION_FAILED"},
		{"bad strict flag", "/api/v1/resources/resolve?strict=maybe", map[string]any{"uris": []string{"ex:a"}}, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := s.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))
			assert.Equal(t, tt.code, decode[errorBody](t, data).Error.Code)
		})
	}
}

func TestOntologyEndpoints(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, http.MethodGet, "/api/v1/ontology/subclasses?parent=ex:Device", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	tree := decode[dto.ClassTreeResponse](t, data)
	require.Len(t, tree.Roots, 1)
	assert.Equal(t, ex+"Device", tree.Roots[0].URI)
	require.Len(t, tree.Roots[0].Children, 1)
	assert.Equal(t, ex+"Sensor", tree.Roots[0].Children[0].URI)
	assert.Equal(t, ex+"Device", tree.Roots[0].Children[0].Parent)
	assert.Equal(t, "Sensor", tree.Roots[0].Children[0].Labels["en"])

	resp, data = s.do(t, http.MethodGet, "/api/v1/ontology/subclasses?parent=ex:Device&ignoreRoot=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tree = decode[dto.ClassTreeResponse](t, data)
	require.Len(t, tree.Roots, 1)
	assert.Equal(t, ex+"Sensor", tree.Roots[0].URI)

	resp, data = s.do(t, http.MethodGet, "/api/v1/ontology/properties?domain="+url.QueryEscape(ex+"Sensor"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	props := decode[dto.PropertiesResponse](t, data)
	assert.Equal(t, ex+"Sensor", props.Domain)
	require.Len(t, props.DataProperties, 1)
	assert.Equal(t, ex+"serial", props.DataProperties[0].URI)
	require.Len(t, props.ObjectProperties, 1)
	assert.Equal(t, ex+"hosts", props.ObjectProperties[0].URI)

	resp, data = s.do(t, http.MethodGet, "/api/v1/ontology/cache/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[dto.CacheStatsResponse](t, data)
	assert.Equal(t, 1, stats.Classes.Entries)
	assert.Positive(t, stats.Properties.Entries)
	assert.Equal(t, "1h0m0s", stats.TTL)

	resp, data = s.do(t, http.MethodGet, "/api/v1/ontology/subclasses", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, data).Error.Code)
}

func TestInvalidate(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, http.MethodGet, "/api/v1/ontology/subclasses?parent=ex:Device", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, s.cache.Stats().Classes.Items)

	resp, data := s.do(t, http.MethodPost, "/api/v1/ontology/cache/invalidate?scope=classes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	assert.Equal(t, "classes", decode[dto.InvalidateResponse](t, data).Scope)
	assert.Zero(t, s.cache.Stats().Classes.Items)
	assert.Equal(t, []string{"classes"}, s.publisher.scopes)

	resp, data = s.do(t, http.MethodPost, "/api/v1/ontology/cache/invalidate?scope=everything", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, data).Error.Code)
	assert.Len(t, s.publisher.scopes, 1)
}

func invalidationEvent(origin, scope string) map[string]any {
	return map[string]any{
		"version":     "0",
		"id":          "evt-1",
		"detail-type": "OntologyCacheInvalidated",
		"source":      "opensilex-backend",
		"detail": map[string]string{
			"event_id":    "e-1",
			"scope":       scope,
			"origin":      origin,
			"occurred_at": "2026-03-01T12:00:00Z",
		},
	}
}

func TestPeerInvalidationEvents(t *testing.T) {
	s := newTestServer(t)
	warm := func() {
		resp, _ := s.do(t, http.MethodGet, "/api/v1/ontology/subclasses?parent=ex:Device", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, 1, s.cache.Stats().Classes.Items)
	}

	warm()
	resp, _ := s.do(t, http.MethodPost, "/api/v1/events/ontology-cache", invalidationEvent("self", "classes"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, s.cache.Stats().Classes.Items, "own events are ignored")

	resp, _ = s.do(t, http.MethodPost, "/api/v1/events/ontology-cache", invalidationEvent("peer-7", "classes"))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, s.cache.Stats().Classes.Items)
	assert.Empty(t, s.publisher.scopes, "peer events are not republished")

	resp, data := s.do(t, http.MethodPost, "/api/v1/events/ontology-cache", invalidationEvent("peer-7", "everything"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decode[errorBody](t, data).Error.Code)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/events/ontology-cache", map[string]any{"detail-type": "Other", "detail": map[string]any{}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestResourceLifecycle(t *testing.T) {
	s := newTestServer(t)
	register := map[string]any{
		"uri":      "ex:s2",
		"type":     "ex:Sensor",
		"graph":    "ex:g1",
		"label":    "Second sensor",
		"metadata": map[string]any{"brand": "Campbell"},
	}

	resp, data := s.do(t, http.MethodPost, "/api/v1/resources", register)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	created := decode[dto.ResourceResponse](t, data)
	assert.Equal(t, ex+"s2", created.URI)
	assert.Equal(t, "/api/v1/resources?uri="+url.QueryEscape(ex+"s2"), resp.Header.Get("Location"))

	resp, data = s.do(t, http.MethodPost, "/api/v1/resources/resolve", map[string]any{"uris": []string{"ex:s2"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[dto.ResolveResponse](t, data).Known, 1, "registered resource resolves")

	resp, data = s.do(t, http.MethodPost, "/api/v1/resources", register)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "RESOURCE_EXISTS", decode[errorBody](t, data).Error.Code)

	resp, data = s.do(t, http.MethodGet, "/api/v1/resources?uri=ex:s2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[dto.ResourceResponse](t, data)
	assert.Equal(t, "Second sensor", got.Label)
	assert.Equal(t, "Campbell", got.Metadata["brand"])

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/resources?uri=ex:s2", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data = s.do(t, http.MethodGet, "/api/v1/resources?uri=ex:s2", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "RESOURCE_NOT_FOUND", decode[errorBody](t, data).Error.Code)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, http.MethodPost, "/api/v1/resources", map[string]any{"uri": "ex:s3"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorBody](t, data)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Contains(t, body.Error.Details, "type: is required")
	assert.Contains(t, body.Error.Details, "graph: is required")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, data := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, handlers.StatusHealthy, decode[dto.HealthResponse](t, data).Status)

	resp, data = s.do(t, http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, handlers.StatusHealthy, decode[dto.HealthResponse](t, data).Checks["triple_store"])

	resp, data = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "opensilex_http_requests_total")
}
