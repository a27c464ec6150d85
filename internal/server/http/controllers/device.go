package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rzbill/linelog/internal/device"
	"github.com/rzbill/linelog/internal/runtime"
	"github.com/rzbill/linelog/pkg/log"
)

// DeviceController exposes the append/read session over HTTP.
type DeviceController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewDeviceController creates a device controller.
func NewDeviceController(rt *runtime.Runtime, logger log.Logger) *DeviceController {
	return &DeviceController{rt: rt, logger: logger}
}

// RegisterRoutes registers device routes with the given mux.
func (c *DeviceController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/write", c.handleWrite)
	mux.HandleFunc("/v1/read", c.handleRead)
	mux.HandleFunc("/v1/records", c.handleRecords)
	mux.HandleFunc("/v1/position", c.handlePosition)
	mux.HandleFunc("/v1/follow", c.handleFollow)
}

// handleWrite appends the raw request body to the pending record.
func (c *DeviceController) handleWrite(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(c.rt.Config().HTTP.MaxBodyBytes)))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := c.rt.Device().Write(r.Context(), body)
	if err != nil {
		c.logger.Warn("write rejected", log.Err(err), log.Int("size", len(body)))
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, writeResp{Accepted: n})
}

// handleRead returns the raw bytes of one record slice starting at offset.
//
// The next offset is returned in X-Next-Offset. 204 means end of data.
func (c *DeviceController) handleRead(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	off, err := parseInt(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset "+err.Error())
		return
	}
	maxRead := c.rt.Config().HTTP.MaxReadBytes
	limit := parseLimit(q.Get("limit"))
	if limit == 0 || limit > maxRead {
		limit = maxRead
	}
	buf := make([]byte, limit)
	n, err := c.rt.Device().ReadAt(r.Context(), buf, off)
	if errors.Is(err, io.EOF) {
		w.Header().Set("X-Next-Offset", strconv.FormatInt(off, 10))
		writeNoContent(w)
		return
	}
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Next-Offset", strconv.FormatInt(off+int64(n), 10))
	_, _ = w.Write(buf[:n])
}

// handleRecords lists retained records oldest first.
func (c *DeviceController) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	recs, err := c.rt.Device().Records(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	resp := recordsResp{Records: make([]recordJSON, 0, len(recs))}
	for _, rec := range recs {
		resp.Records = append(resp.Records, toRecordJSON(rec))
		resp.Bytes += int64(len(rec.Data))
	}
	writeJSON(w, resp)
}

// handlePosition resolves (entry, offset) to a global position.
func (c *DeviceController) handlePosition(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	entry, err := parseInt(q.Get("entry"), -1)
	if err != nil || entry < 0 {
		writeError(w, http.StatusBadRequest, "entry is required and must be a non-negative integer")
		return
	}
	off, err := parseInt(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "offset "+err.Error())
		return
	}
	pos, err := c.rt.Device().FindPos(r.Context(), int(entry), int(off))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, positionResp{Entry: int(entry), Offset: int(off), Position: pos})
}

// handleFollow streams newly committed records as SSE "record" events.
//
// By default only records committed after the request are sent; after=N
// resumes after commit sequence N and from_start=true replays retained
// records. Records evicted before delivery produce a "gap" event.
func (c *DeviceController) handleFollow(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()
	dev := c.rt.Device()
	q := r.URL.Query()

	var after uint64
	switch {
	case parseBool(q.Get("from_start")):
	case q.Get("after") != "":
		n, err := parseInt(q.Get("after"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after "+err.Error())
			return
		}
		after = uint64(n)
	default:
		st, err := dev.Stats(ctx)
		if err != nil {
			writeDeviceError(w, err)
			return
		}
		after = st.Commits
	}

	sink, ok := newSSESink(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	w.WriteHeader(http.StatusOK)
	sink.Flush()

	poll := time.Duration(c.rt.Config().HTTP.FollowPollMs) * time.Millisecond
	if poll <= 0 {
		poll = time.Second
	}
	timer := time.NewTimer(poll)
	defer timer.Stop()
	for {
		committed := dev.Committed()
		recs, err := dev.RecordsSince(ctx, after)
		if err != nil {
			if ctx.Err() == nil {
				_ = sink.Send("error", map[string]string{"error": err.Error()})
				sink.Flush()
			}
			return
		}
		if after > 0 && len(recs) > 0 && recs[0].Seq > after+1 {
			_ = sink.Send("gap", gapEvent{From: after + 1, Missed: recs[0].Seq - after - 1})
		}
		for _, rec := range recs {
			if err := sink.Send("record", toRecordJSON(rec)); err != nil {
				return
			}
			after = rec.Seq
		}
		sink.Flush()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(poll)
		select {
		case <-ctx.Done():
			return
		case <-committed:
		case <-timer.C:
			if err := sink.Comment("keepalive"); err != nil {
				return
			}
			sink.Flush()
		}
	}
}

func toRecordJSON(rec device.Record) recordJSON {
	return recordJSON{
		Seq:      rec.Seq,
		Index:    rec.Index,
		Position: rec.Position,
		Size:     len(rec.Data),
		Payload:  rec.Data,
	}
}
