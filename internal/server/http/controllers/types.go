package controllers

import "time"

// Response types for HTTP controllers

type writeResp struct {
	Accepted int `json:"accepted"`
}

type positionResp struct {
	Entry    int   `json:"entry"`
	Offset   int   `json:"offset"`
	Position int64 `json:"position"`
}

// recordJSON is one retained record. Payload is base64 in JSON.
type recordJSON struct {
	Seq      uint64 `json:"seq"`
	Index    int    `json:"index"`
	Position int64  `json:"position"`
	Size     int    `json:"size"`
	Payload  []byte `json:"payload"`
}

type recordsResp struct {
	Records []recordJSON `json:"records"`
	Bytes   int64        `json:"bytes"`
}

type archiveEntryJSON struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	ReleasedAt time.Time `json:"released_at"`
	Size       int       `json:"size"`
	Payload    []byte    `json:"payload"`
}

type archiveResp struct {
	Entries []archiveEntryJSON `json:"entries"`
	Count   int64              `json:"count"`
	Dropped uint64             `json:"dropped"`
}

// gapEvent reports records evicted before a follower saw them.
type gapEvent struct {
	From   uint64 `json:"from"`
	Missed uint64 `json:"missed"`
}
