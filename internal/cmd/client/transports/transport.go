package transports

import (
	"context"
	"encoding/json"
	"time"
)

// Record is one retained record as listed by the server.
type Record struct {
	Seq      uint64 `json:"seq"`
	Index    int    `json:"index"`
	Position int64  `json:"position"`
	Size     int    `json:"size"`
	Payload  []byte `json:"payload"`
}

// ArchivedRecord is one record released by the device.
type ArchivedRecord struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	ReleasedAt time.Time `json:"released_at"`
	Size       int       `json:"size"`
	Payload    []byte    `json:"payload"`
}

// ArchivePage is the result of ListArchive.
type ArchivePage struct {
	Entries []ArchivedRecord `json:"entries"`
	Count   int64            `json:"count"`
	Dropped uint64           `json:"dropped"`
}

// Gap reports records evicted before a follower received them.
type Gap struct {
	From   uint64 `json:"from"`
	Missed uint64 `json:"missed"`
}

// FollowRequest selects where a follow starts. With neither field set only
// records committed after the call are delivered.
type FollowRequest struct {
	After     uint64
	FromStart bool
	// Limit stops after N records; zero follows until ctx is done.
	Limit int
}

// FollowHandler receives follow events. Either callback may be nil.
type FollowHandler struct {
	OnRecord func(Record) error
	OnGap    func(Gap) error
}

// DeviceTransport abstracts the transport used by the CLI for device
// operations.
type DeviceTransport interface {
	Write(ctx context.Context, data []byte) (accepted int, err error)
	// Read returns bytes at offset and the next offset. eof is true when
	// offset is at the end of retained data.
	Read(ctx context.Context, offset int64, limit int) (data []byte, next int64, eof bool, err error)
	Records(ctx context.Context) ([]Record, error)
	Position(ctx context.Context, entry, offset int) (int64, error)
	Stats(ctx context.Context) (json.RawMessage, error)
	ListArchive(ctx context.Context, limit int, reverse bool) (ArchivePage, error)
	Follow(ctx context.Context, req FollowRequest, h FollowHandler) error
}

// HealthTransport reports server health.
type HealthTransport interface {
	// Health returns the serving status name for service, "" meaning the
	// whole server.
	Health(ctx context.Context, service string) (string, error)
}
