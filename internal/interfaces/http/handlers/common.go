// Package handlers adapts HTTP requests to the consistency core. Handlers
// decode and validate input, call the core and write JSON; error bodies are
// produced by errors.WriteHTTPError.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"opensilex-backend/internal/domain/rdf"
	apperrors "opensilex-backend/internal/errors"
	"opensilex-backend/internal/interfaces/http/validation"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// base carries what every handler needs.
type base struct {
	prefixes  *rdf.Prefixes
	validator *validation.Validator
	maxBody   int64
	logger    *zap.Logger
}

func newBase(prefixes *rdf.Prefixes, maxBody int64, logger *zap.Logger, name string) base {
	if prefixes == nil {
		prefixes = rdf.NewPrefixes(nil)
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		prefixes:  prefixes,
		validator: validation.GetValidator(),
		maxBody:   maxBody,
		logger:    logger.Named(name),
	}
}

func (b *base) fail(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.WriteHTTPError(w, r, err, apperrors.WithContext(r.Context(), b.logger))
}

// decode reads a JSON body into dst and validates it.
func (b *base) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, b.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Validation(apperrors.CodeInvalidInput, "request body too large").
				WithDetails(strconv.FormatInt(tooLarge.Limit, 10) + " bytes maximum").
				Build()
		}
		return apperrors.Validation(apperrors.CodeInvalidInput, "invalid request body").
			WithDetails(err.Error()).
			WithCause(err).
			Build()
	}
	return b.validator.Validate(dst)
}

func decodeLenient(w http.ResponseWriter, r *http.Request, maxBody int64, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst)
}

// uriParam normalizes a required query parameter.
func (b *base) uriParam(r *http.Request, name string) (rdf.URI, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return rdf.URI{}, apperrors.Validation(apperrors.CodeInvalidInput, "missing query parameter "+name).Build()
	}
	return b.prefixes.Normalize(raw)
}

// boolParam parses an optional boolean query parameter.
func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Validation(apperrors.CodeInvalidInput, "query parameter "+name+" must be a boolean").Build()
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
