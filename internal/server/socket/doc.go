// Package socket is linelog's raw TCP front end. Every byte a client sends
// goes to the shared device through a per-connection handle; whenever a
// received chunk ends with the terminator, the full retained contents are
// sent back on the same connection.
//
// Example:
//
//	srv := socket.New(rt.Device(), socket.Options{Logger: logger})
//	_ = srv.ListenAndServe(ctx, socket.DefaultAddr)
package socket
