// Package rdf4j implements the triple store contracts over the RDF4J server
// REST protocol.
package rdf4j

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/infrastructure/sparql"
	"opensilex-backend/internal/repository"
)

const (
	contentTypeQuery  = "application/sparql-query"
	contentTypeUpdate = "application/sparql-update"
)

// BreakerConfig configures the circuit breaker guarding the server.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// Config holds connection settings.
type Config struct {
	Endpoint     string
	Repository   string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Breaker      BreakerConfig
}

// DefaultConfig returns settings for a local RDF4J server.
func DefaultConfig() Config {
	return Config{
		Endpoint:     "http://localhost:8080/rdf4j-server",
		Repository:   "opensilex",
		Timeout:      30 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
	}
}

// Store talks to one RDF4J repository.
type Store struct {
	repoURL *url.URL
	client  *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ repository.TripleStore = (*Store)(nil)

// statusError is a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type noRetryKey struct{}

// NewStore creates a client for cfg.Repository on cfg.Endpoint.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Repository == "" {
		return nil, errors.New("rdf4j: repository id is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/") + "/repositories/" + url.PathEscape(cfg.Repository))
	if err != nil {
		return nil, fmt.Errorf("rdf4j: invalid endpoint: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("rdf4j: endpoint %q is not absolute", cfg.Endpoint)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.Logger = &leveledLogger{logger: logger.Named("rdf4j.http").Sugar()}
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Value(noRetryKey{}) != nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	bc := cfg.Breaker
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rdf4j:" + cfg.Repository,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Rejected queries say nothing about server health.
			var se *statusError
			if errors.As(err, &se) {
				return se.Code < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Store{repoURL: base, client: client, breaker: breaker, logger: logger}, nil
}

// Select runs q outside of any transaction.
func (s *Store) Select(ctx context.Context, q *sparql.Select) ([]sparql.Row, error) {
	body, err := s.do(ctx, "select", http.MethodPost, s.repoURL.String(), contentTypeQuery, q.String(), true)
	if err != nil {
		return nil, err
	}
	rows, err := sparql.DecodeResults(bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewStoreError("select", err)
	}
	return rows, nil
}

// Ask runs q outside of any transaction.
func (s *Store) Ask(ctx context.Context, q *sparql.Ask) (bool, error) {
	body, err := s.do(ctx, "ask", http.MethodPost, s.repoURL.String(), contentTypeQuery, q.String(), true)
	if err != nil {
		return false, err
	}
	ok, err := sparql.DecodeBoolean(bytes.NewReader(body))
	if err != nil {
		return false, apperrors.NewStoreError("ask", err)
	}
	return ok, nil
}

// Begin returns a transaction handle. The server-side transaction is opened
// on the first write, so a transaction that never writes costs no round trip.
func (s *Store) Begin(ctx context.Context) (repository.TripleTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreError("begin", err)
	}
	return newTx(s), nil
}

// openTransaction starts a server-side transaction and returns its URL.
func (s *Store) openTransaction(ctx context.Context) (*url.URL, error) {
	endpoint := s.repoURL.JoinPath("transactions").String()

	var location string
	_, err := s.execute(ctx, "begin", func(ctx context.Context) ([]byte, error) {
		resp, err := s.send(ctx, http.MethodPost, endpoint, "", "", nil, false)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		location = resp.Header.Get("Location")
		if location == "" {
			return nil, errors.New("transaction response carries no Location header")
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	ref, err := url.Parse(location)
	if err != nil {
		return nil, apperrors.NewStoreError("begin", fmt.Errorf("invalid transaction location %q: %w", location, err))
	}
	return s.repoURL.ResolveReference(ref), nil
}

// do sends one request and returns the response body of a 2xx answer.
func (s *Store) do(ctx context.Context, op, method, target, contentType, payload string, retry bool) ([]byte, error) {
	return s.execute(ctx, op, func(ctx context.Context) ([]byte, error) {
		var body io.Reader
		if payload != "" {
			body = strings.NewReader(payload)
		}
		resp, err := s.send(ctx, method, target, contentType, sparql.ResultsContentType, body, retry)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return readBody(resp)
	})
}

// execute runs fn through the circuit breaker inside a span and maps every
// failure to a StoreError.
func (s *Store) execute(ctx context.Context, op string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	ctx, span := otel.Tracer("opensilex/rdf4j").Start(ctx, "rdf4j."+op)
	defer span.End()
	span.SetAttributes(attribute.String("rdf4j.repository", s.repoURL.Path))

	start := time.Now()
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Debug("Triple store request failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, apperrors.NewStoreError(op, err)
	}
	body, _ := out.([]byte)
	return body, nil
}

func (s *Store) send(ctx context.Context, method, target, contentType, accept string, body io.Reader, retry bool) (*http.Response, error) {
	if !retry {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}
	var payload interface{}
	if body != nil {
		payload = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType+"; charset=utf-8")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return s.client.Do(req)
}

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Code: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}
