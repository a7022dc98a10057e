package errors

import (
	"context"
	"errors"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production uses JSON output at the
// configured level with sampling; anything else uses the development encoder.
func NewLogger(environment, level string) (*zap.Logger, error) {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	)
}

// WithContext returns logger annotated with the request id carried by ctx.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		return logger.With(zap.String("request_id", requestID))
	}
	return logger
}

// LogError logs err at the level implied by its classification.
func LogError(logger *zap.Logger, err error, message string, fields ...zap.Field) {
	if err == nil {
		return
	}

	unifiedErr := Classify(err)
	fields = append(fields,
		zap.String("error_type", string(unifiedErr.Type)),
		zap.String("error_code", unifiedErr.Code.String()),
		zap.String("error_severity", string(unifiedErr.Severity)),
	)
	if unifiedErr.Operation != "" {
		fields = append(fields, zap.String("failed_operation", unifiedErr.Operation))
	}

	var rollback *RollbackError
	if errors.As(err, &rollback) {
		fields = append(fields, zap.NamedError("rollback_error", rollback.RollbackErr))
	}

	fields = append(fields, zap.Error(err))
	logger.Log(getLogLevel(unifiedErr.Severity), message, fields...)
}
