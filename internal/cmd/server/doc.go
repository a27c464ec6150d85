// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the linelog runtime with its gRPC, HTTP and socket servers, handling
// lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":50051", HTTPAddr: ":8080", SocketAddr: ":9000", Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
