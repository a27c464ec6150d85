// Package grpcserver hosts linelog's gRPC endpoint: the standard
// grpc.health.v1 service, whose status follows runtime.CheckHealth, plus
// server reflection for grpcurl-style tooling.
//
// Example:
//
//	s := grpcserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
