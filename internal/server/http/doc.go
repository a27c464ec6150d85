// Package httpserver provides linelog's REST API: raw writes and offset
// reads against the shared device, record listing, position lookup, an SSE
// follow stream, archive browsing, health, stats and /metrics. The embedded
// dashboard is served under /ui/.
//
// Example:
//
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
