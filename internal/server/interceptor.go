package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/zerowaste/internal/common"
)

const requestIDHeader = "x-request-id"

// UnaryLogging assigns a request id, attaches a request-scoped logger and
// logs one line per call. API keys in metadata are never logged.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(requestIDHeader); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.NewString()
		}
		reqLogger := logger.With("request_id", reqID)
		ctx = common.WithRequestID(ctx, reqID)
		ctx = common.WithLogger(ctx, reqLogger)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, reqID))

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		attrs := []any{
			"method", info.FullMethod,
			"code", code.String(),
			"byok", apiKeyFrom(ctx) != "",
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			reqLogger.Warn("grpc.request.error", append(attrs, "error", err)...)
		} else {
			reqLogger.Info("grpc.request", attrs...)
		}
		return resp, err
	}
}
