package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	transports "github.com/rzbill/linelog/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from LINELOG_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("LINELOG_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialGRPCContext creates a client for the linelog gRPC endpoint with
// insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func deviceTransport(baseURL BaseURLFunc) transports.DeviceTransport {
	return transports.NewHTTPTransport(baseURL, nil)
}

// decodedPayload renders payload as payload_json, payload_text or
// payload_b64, whichever fits first.
func decodedPayload(out map[string]any, payload []byte) map[string]any {
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

func decodedRecord(r transports.Record) map[string]any {
	return decodedPayload(map[string]any{
		"seq":      r.Seq,
		"index":    r.Index,
		"position": r.Position,
		"size":     r.Size,
	}, r.Payload)
}

func decodedArchived(r transports.ArchivedRecord) map[string]any {
	return decodedPayload(map[string]any{
		"id":          r.ID,
		"reason":      r.Reason,
		"released_at": r.ReleasedAt,
		"size":        r.Size,
	}, r.Payload)
}
