// Package runtime wires the device, the archive of released records and the
// metrics registry into a single linelog instance shared by every server.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	defer rt.Close(context.Background())
//	_ = rt.CheckHealth(context.Background())
//	h := rt.Device().Open()
//	_, _ = h.Write([]byte("hello\n"))
package runtime
