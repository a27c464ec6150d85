// Package client provides the `linelog` command-line client.
//
// The CLI talks to the linelog HTTP and gRPC endpoints to inspect and feed
// a running device from a terminal.
//
// Installation
//
//	go install github.com/rzbill/linelog/cmd/linelog@latest
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it
// defaults to http://127.0.0.1:8080 (LINELOG_HTTP). The gRPC address is read
// from the LINELOG_GRPC environment variable (default 127.0.0.1:50051).
//
// Usage
//
//	linelog write hello world          # sends "hello world\n"
//	printf 'a\nb' | linelog write      # stays pending: the chunk does not end in a newline
//
//	linelog read --offset 0            # one record slice, next offset on stderr
//	linelog read --all                 # everything retained
//	linelog read --follow --from-start # retained records, then new ones
//	linelog read --follow --after 42   # resume after commit sequence 42
//
//	linelog records
//	linelog position --entry 1 --offset 3
//	linelog stats
//	linelog archive --limit 20 --reverse
//	linelog health
//
// Notes
//
//   - records and archive print one JSON object per line; payloads are
//     rendered as payload_json, payload_text or payload_b64.
//   - read --follow prints a notice on stderr when records were evicted
//     before they could be delivered.
package client
