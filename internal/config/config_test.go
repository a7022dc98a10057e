package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"opensilex-backend/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader(t.TempDir(), config.Development).Load()
	require.NoError(t, err)

	assert.Equal(t, config.Development, cfg.Environment)
	assert.Equal(t, "memory", cfg.TripleStore.Provider)
	assert.Equal(t, "memory", cfg.DocumentStore.Provider)
	assert.Equal(t, 30*time.Minute, cfg.Ontology.CacheTTL)
	assert.Equal(t, 1000, cfg.Resolution.PageSize)
	assert.Equal(t, []string{"defaults", "environment"}, cfg.LoadedFrom)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
triple_store:
  provider: rdf4j
  endpoint: http://rdf4j:8080/rdf4j-server
  repository: base-repo
resolution:
  page_size: 200
ontology:
  warmup: ["vocabulary:Device"]
`)
	writeFile(t, dir, "development.yaml", `
triple_store:
  repository: dev-repo
ontology:
  cache_ttl: 10m
`)
	writeFile(t, dir, "local.yaml", `
resolution:
  page_size: 50
`)
	t.Setenv("ONTOLOGY_CACHE_TTL", "90s")

	cfg, err := config.NewLoader(dir, config.Development).Load()
	require.NoError(t, err)

	assert.Equal(t, "rdf4j", cfg.TripleStore.Provider)
	assert.Equal(t, "dev-repo", cfg.TripleStore.Repository)
	assert.Equal(t, 50, cfg.Resolution.PageSize)
	assert.Equal(t, 90*time.Second, cfg.Ontology.CacheTTL, "environment variables win")
	assert.Equal(t, []string{"vocabulary:Device"}, cfg.Ontology.Warmup)
	assert.Equal(t, []string{
		"defaults",
		filepath.Join(dir, "base.yaml"),
		filepath.Join(dir, "development.yaml"),
		filepath.Join(dir, "local.yaml"),
		"environment",
	}, cfg.LoadedFrom)
}

func TestLoadIgnoresLocalOutsideDevelopment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "local.yaml", "resolution:\n  page_size: 7\n")

	cfg, err := config.NewLoader(dir, config.Production).Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Resolution.PageSize)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "staging.json", `{"document_store": {"provider": "dynamodb", "table_name": "opensilex-docs"}}`)

	cfg, err := config.NewLoader(dir, config.Staging).Load()
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.DocumentStore.Provider)
	assert.Equal(t, "opensilex-docs", cfg.DocumentStore.TableName)
}

func TestLoadEnvironmentVariables(t *testing.T) {
	t.Setenv("TRIPLESTORE_PROVIDER", "rdf4j")
	t.Setenv("TRIPLESTORE_ENDPOINT", "http://graphdb:7200")
	t.Setenv("TRIPLESTORE_REPOSITORY", "phis")
	t.Setenv("TABLE_NAME", "docs")
	t.Setenv("AWS_REGION", "eu-west-3")
	t.Setenv("ONTOLOGY_WARMUP", "vocabulary:Device, oeso:Experiment ,")
	t.Setenv("ENABLE_EVENTS", "true")

	cfg, err := config.NewLoader(t.TempDir(), config.Development).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://graphdb:7200", cfg.TripleStore.Endpoint)
	assert.Equal(t, "phis", cfg.TripleStore.Repository)
	assert.Equal(t, "docs", cfg.DocumentStore.TableName)
	assert.Equal(t, "eu-west-3", cfg.DocumentStore.Region)
	assert.Equal(t, []string{"vocabulary:Device", "oeso:Experiment"}, cfg.Ontology.Warmup)
	assert.True(t, cfg.Events.Enabled)
}

func TestLoadRejectsMalformedEnvironmentValues(t *testing.T) {
	t.Setenv("ONTOLOGY_CACHE_TTL", "soon")
	t.Setenv("RESOLUTION_PAGE_SIZE", "many")

	_, err := config.NewLoader(t.TempDir(), config.Development).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ONTOLOGY_CACHE_TTL")
	assert.Contains(t, err.Error(), "RESOLUTION_PAGE_SIZE")
}

func TestLoadRejectsUnparsableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "resolution: [\n")

	_, err := config.NewLoader(dir, config.Development).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base.yaml")
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.NewLoader(t.TempDir(), config.Development).Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"zero cache ttl", func(c *config.Config) { c.Ontology.CacheTTL = 0 }, "CacheTTL"},
		{"negative cache ttl", func(c *config.Config) { c.Ontology.CacheTTL = -time.Second }, "CacheTTL"},
		{"zero page size", func(c *config.Config) { c.Resolution.PageSize = 0 }, "PageSize"},
		{"unknown triple store", func(c *config.Config) { c.TripleStore.Provider = "virtuoso" }, "TripleStore.Provider"},
		{"unknown document store", func(c *config.Config) { c.DocumentStore.Provider = "mongodb" }, "DocumentStore.Provider"},
		{"rdf4j without repository", func(c *config.Config) {
			c.TripleStore.Provider = "rdf4j"
			c.TripleStore.Repository = ""
		}, "Repository"},
		{"dynamodb without table", func(c *config.Config) {
			c.DocumentStore.Provider = "dynamodb"
			c.DocumentStore.TableName = ""
		}, "TableName"},
		{"events without bus", func(c *config.Config) {
			c.Events.Enabled = true
			c.Events.EventBusName = ""
		}, "EventBusName"},
		{"bad log level", func(c *config.Config) { c.Logging.Level = "trace" }, "Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	t.Run("reports every violation", func(t *testing.T) {
		cfg := valid()
		cfg.Ontology.CacheTTL = 0
		cfg.Resolution.PageSize = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CacheTTL")
		assert.Contains(t, err.Error(), "PageSize")
	})
}

func TestProductionDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.NewLoader(t.TempDir(), config.Production).Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Tracing.Insecure)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	loader := config.NewLoader(dir, config.Staging)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := config.NewWatcher(loader, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var calls atomic.Int32
	var seen atomic.Int64
	w.OnChange(func(c *config.Config) {
		calls.Add(1)
		seen.Store(int64(c.Ontology.CacheTTL))
	})
	w.OnChange(func(*config.Config) { panic("ignored") })

	w.Reload()
	assert.Zero(t, calls.Load(), "unchanged configuration notifies nobody")

	writeFile(t, dir, "staging.yaml", "ontology:\n  cache_ttl: 2m\n")
	w.Reload()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(2*time.Minute), seen.Load())
	assert.Equal(t, 2*time.Minute, w.Config().Ontology.CacheTTL)

	writeFile(t, dir, "staging.yaml", "ontology:\n  cache_ttl: 0s\n")
	w.Reload()
	assert.Equal(t, int32(1), calls.Load(), "invalid configuration is not applied")
	assert.Equal(t, 2*time.Minute, w.Config().Ontology.CacheTTL)
}

func TestWatcherPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	loader := config.NewLoader(dir, config.Development)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := config.NewWatcher(loader, initial, nil)
	require.NoError(t, err)
	defer w.Stop()

	changed := make(chan time.Duration, 4)
	w.OnChange(func(c *config.Config) { changed <- c.Ontology.CacheTTL })

	writeFile(t, dir, "local.yaml", "ontology:\n  cache_ttl: 45s\n")

	select {
	case ttl := <-changed:
		assert.Equal(t, 45*time.Second, ttl)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration change was not picked up")
	}
}

func TestWatcherCallbacksRegisteredDuringReloadWaitForNextReload(t *testing.T) {
	dir := t.TempDir()
	loader := config.NewLoader(dir, config.Staging)
	initial, err := loader.Load()
	require.NoError(t, err)

	w, err := config.NewWatcher(loader, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var late atomic.Int32
	var registered atomic.Bool
	w.OnChange(func(*config.Config) {
		if registered.CompareAndSwap(false, true) {
			w.OnChange(func(*config.Config) { late.Add(1) })
		}
	})

	writeFile(t, dir, "staging.yaml", "ontology:\n  cache_ttl: 3m\n")
	w.Reload()
	assert.Zero(t, late.Load(), "callbacks run from a snapshot taken before notifying")

	writeFile(t, dir, "staging.yaml", "ontology:\n  cache_ttl: 4m\n")
	w.Reload()
	assert.Equal(t, int32(1), late.Load())
}
