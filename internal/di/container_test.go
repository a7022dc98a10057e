package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opensilex-backend/internal/config"
)

func loadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.NewLoader(dir, config.Staging).Load()
	require.NoError(t, err)
	return cfg
}

func newTestContainer(t *testing.T) *Container {
	t.Helper()
	c, err := NewContainer(context.Background(), loadConfig(t, t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	return c
}

func TestNewContainerWithMemoryStores(t *testing.T) {
	c := newTestContainer(t)

	assert.Nil(t, c.AWS.DynamoDB, "no AWS client without a DynamoDB store")
	assert.Nil(t, c.AWS.EventBridge)
	assert.NotEmpty(t, c.Origin)
	require.NotNil(t, c.Router)

	rr := httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestContainerServesResourceRoundTrip(t *testing.T) {
	c := newTestContainer(t)
	c.Start(context.Background())

	body := `{"uri":"http://example.org/r1","type":"http://example.org/Thing","graph":"http://example.org/g"}`
	rr := httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/resources", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	c.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/resources/resolve",
		strings.NewReader(`{"uris":["http://example.org/r1","http://example.org/r2"]}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"unknown":["http://example.org/r2"]`)
}

func TestWatchConfigUpdatesCacheTTL(t *testing.T) {
	dir := t.TempDir()
	cfg := loadConfig(t, dir)
	c, err := NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })
	require.Equal(t, cfg.Ontology.CacheTTL, c.Ontology.TTL())

	watcher, err := config.NewWatcher(config.NewLoader(dir, config.Staging), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(watcher.Stop)
	c.WatchConfig(watcher)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("ontology:\n  cache_ttl: 7m\n"), 0o600))
	watcher.Reload()

	assert.Equal(t, 7*time.Minute, c.Ontology.TTL())
}

func TestProvideTripleStore(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())

	cfg.TripleStore.Provider = "rdf4j"
	store, err := provideTripleStore(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.TripleStore.Provider = "jena"
	_, err = provideTripleStore(cfg, zap.NewNop())
	assert.ErrorContains(t, err, `unknown triple store provider "jena"`)
}

func TestProvideDocumentStore(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())

	cfg.DocumentStore.Provider = "dynamodb"
	_, err := provideDocumentStore(cfg, &AWSClients{}, zap.NewNop())
	assert.ErrorContains(t, err, "dynamodb client not initialized")

	cfg.DocumentStore.Provider = "mongo"
	_, err = provideDocumentStore(cfg, &AWSClients{}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown document store provider")
}

func TestProvideInvalidationPublisher(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())
	assert.Nil(t, provideInvalidationPublisher(cfg, &AWSClients{}, "a", zap.NewNop()))

	cfg.Events.Enabled = true
	assert.Nil(t, provideInvalidationPublisher(cfg, &AWSClients{}, "a", zap.NewNop()), "no client, no publisher")
}

func TestProvideOntologyCacheRejectsBadWarmup(t *testing.T) {
	cfg := loadConfig(t, t.TempDir())
	cfg.Ontology.Warmup = []string{"not a uri"}

	_, err := provideOntologyCache(nil, cfg, providePrefixes(cfg), zap.NewNop(), nil)
	assert.ErrorContains(t, err, "invalid ontology warmup class")
}

func TestColdStartTracker(t *testing.T) {
	tracker := NewColdStartTracker()
	assert.True(t, tracker.Observe())
	assert.False(t, tracker.Observe())
	assert.GreaterOrEqual(t, tracker.SinceStart(), time.Duration(0))
}
