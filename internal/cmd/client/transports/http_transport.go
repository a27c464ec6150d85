package transports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPTransport implements DeviceTransport over the REST API.
type HTTPTransport struct {
	base   func() string
	client *http.Client
}

// NewHTTPTransport returns a transport rooted at base(). A nil client uses
// http.DefaultClient.
func NewHTTPTransport(base func() string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: base, client: client}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Response, error) {
	u := strings.TrimRight(t.base(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return nil, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	return resp, nil
}

func (t *HTTPTransport) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	resp, err := t.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// Write posts data to the device.
func (t *HTTPTransport) Write(ctx context.Context, data []byte) (int, error) {
	resp, err := t.do(ctx, http.MethodPost, "/v1/write", nil, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var out struct {
		Accepted int `json:"accepted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Accepted, nil
}

// Read fetches bytes at offset.
func (t *HTTPTransport) Read(ctx context.Context, offset int64, limit int) ([]byte, int64, bool, error) {
	q := url.Values{"offset": {strconv.FormatInt(offset, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	resp, err := t.do(ctx, http.MethodGet, "/v1/read", q, nil)
	if err != nil {
		return nil, 0, false, err
	}
	defer resp.Body.Close()
	next := offset
	if v := resp.Header.Get("X-Next-Offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			next = n
		}
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, next, true, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, false, err
	}
	if next == offset {
		next = offset + int64(len(data))
	}
	return data, next, false, nil
}

// Records lists retained records.
func (t *HTTPTransport) Records(ctx context.Context) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	if err := t.getJSON(ctx, "/v1/records", nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Position resolves (entry, offset) to a global position.
func (t *HTTPTransport) Position(ctx context.Context, entry, offset int) (int64, error) {
	q := url.Values{"entry": {strconv.Itoa(entry)}, "offset": {strconv.Itoa(offset)}}
	var out struct {
		Position int64 `json:"position"`
	}
	if err := t.getJSON(ctx, "/v1/position", q, &out); err != nil {
		return 0, err
	}
	return out.Position, nil
}

// Stats returns the raw stats document.
func (t *HTTPTransport) Stats(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := t.getJSON(ctx, "/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListArchive lists archived records.
func (t *HTTPTransport) ListArchive(ctx context.Context, limit int, reverse bool) (ArchivePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if reverse {
		q.Set("reverse", "true")
	}
	var out ArchivePage
	err := t.getJSON(ctx, "/v1/archive", q, &out)
	return out, err
}

// Follow consumes the SSE follow stream until ctx is done, the server ends
// the stream or req.Limit records were delivered.
func (t *HTTPTransport) Follow(ctx context.Context, req FollowRequest, h FollowHandler) error {
	q := url.Values{}
	switch {
	case req.FromStart:
		q.Set("from_start", "true")
	case req.After > 0:
		q.Set("after", strconv.FormatUint(req.After, 10))
	}
	resp, err := t.do(ctx, http.MethodGet, "/v1/follow", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	delivered := 0
	var event string
	var data []byte
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event == "" {
				continue
			}
			if err := dispatch(event, data, h); err != nil {
				return err
			}
			if event == "record" {
				delivered++
				if req.Limit > 0 && delivered >= req.Limit {
					return nil
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func dispatch(event string, data []byte, h FollowHandler) error {
	switch event {
	case "record":
		if h.OnRecord == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		return h.OnRecord(r)
	case "gap":
		if h.OnGap == nil {
			return nil
		}
		var g Gap
		if err := json.Unmarshal(data, &g); err != nil {
			return fmt.Errorf("decode gap: %w", err)
		}
		return h.OnGap(g)
	case "error":
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return fmt.Errorf("follow: %s", e.Error)
	}
	return nil
}

var (
	_ DeviceTransport = (*HTTPTransport)(nil)
	_ HealthTransport = (*GrpcTransport)(nil)
)
