package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	fields := []any{
		"method", info.FullMethod,
		"code", code.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
		s.logger.Warn(ctx, "grpc request failed", fields...)
		return resp, err
	}
	s.logger.Debug(ctx, "grpc request completed", fields...)
	return resp, nil
}

func (s *GRPCServer) recoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(ctx, "panic recovered", "method", info.FullMethod, "panic", fmt.Sprint(rec))
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return handler(ctx, req)
}
