package grpcx

import (
	"context"

	"github.com/serenity-care/platform/libs/httpx"
	"google.golang.org/grpc/metadata"
)

// RequestIDMetadataKey is lowercase per gRPC metadata conventions.
const RequestIDMetadataKey = "x-request-id"

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(RequestIDMetadataKey); len(vals) > 0 && httpx.ValidRequestID(vals[0]) {
		return vals[0]
	}
	return ""
}
