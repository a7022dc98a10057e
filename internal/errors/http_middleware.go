package errors

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HTTPErrorResponse represents the standardized error response structure
type HTTPErrorResponse struct {
	Error     HTTPErrorDetails `json:"error"`
	RequestID string           `json:"request_id,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// HTTPErrorDetails contains the error details
type HTTPErrorDetails struct {
	Type      string   `json:"type"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Details   string   `json:"details,omitempty"`
	Resource  string   `json:"resource,omitempty"`
	URIs      []string `json:"uris,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

// WriteHTTPError writes a standardized error response
func WriteHTTPError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	unifiedErr := Classify(err)
	statusCode := unifiedErr.Code.HTTPStatusCode()
	requestID := middleware.GetReqID(r.Context())

	response := HTTPErrorResponse{
		Error: HTTPErrorDetails{
			Type:      string(unifiedErr.Type),
			Code:      unifiedErr.Code.String(),
			Message:   unifiedErr.Message,
			Details:   unifiedErr.Details,
			Resource:  unifiedErr.Resource,
			URIs:      unifiedErr.URIs,
			Retryable: unifiedErr.Retryable,
		},
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	logger.Log(getLogLevel(unifiedErr.Severity),
		"HTTP error response",
		zap.String("error_type", string(unifiedErr.Type)),
		zap.String("error_code", unifiedErr.Code.String()),
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.Int("status_code", statusCode),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("Failed to encode error response",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
	}
}

// getLogLevel converts error severity to zap log level
func getLogLevel(severity ErrorSeverity) zapcore.Level {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return zapcore.ErrorLevel
	case SeverityMedium:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
