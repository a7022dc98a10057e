package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "opensilex-backend/internal/errors"
)

// Recovery turns a handler panic into a 500 error response. http.ErrAbortHandler
// is re-raised so the server aborts the connection as intended.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Handler panicked",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				err := apperrors.Internal(apperrors.CodeInternalError, "internal server error").
					WithDetails(fmt.Sprint(rec)).
					Build()
				apperrors.WriteHTTPError(w, r, err, nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
