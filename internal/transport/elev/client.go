// Package elev talks to an OpenTopo-compatible elevation service:
// GET <base>/v1/<dataset>?locations=lat,lng|lat,lng for explicit
// coordinates, POST <base>/v1/<dataset> with a JSON body for geohash
// batches.
package elev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"hexelev.dev/internal/protocol"
)

// Request is one batch query, already encoded by the fetch batcher.
type Request struct {
	ID        string
	Dataset   string
	Mode      protocol.QueryMode
	Locations []protocol.LatLng
	Geohashes []string
	Precision int
}

// NewRequestID mirrors the upstream convention: a bare uuid4 hex string.
func NewRequestID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:])
}

// WireSize estimates the serialized payload for rate accounting.
func (r Request) WireSize() int {
	if r.Mode == protocol.QueryGeohash {
		n := 0
		for _, g := range r.Geohashes {
			n += len(g) + 3
		}
		return n + 64
	}
	// "lat,lng|" at six decimals is ~22 bytes per sample.
	return 22*len(r.Locations) + 64
}

type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

func NewClient(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Query performs one batch call and returns the normalized response.
// Transport and upstream failures come back as errors; a 2xx with missing
// results is returned as-is for the pipeline's retry accounting.
func (c *Client) Query(ctx context.Context, req Request) (protocol.ResponseMsg, error) {
	start := time.Now()
	var (
		body []byte
		err  error
	)
	if req.Mode == protocol.QueryGeohash {
		body, err = c.post(ctx, req)
	} else {
		body, err = c.get(ctx, req)
	}
	resp := protocol.ResponseMsg{
		ID:         req.ID,
		Type:       protocol.TypeHTTPResponse,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		resp.Status = 0
		resp.Code = protocol.ErrUpstream
		if ctx.Err() != nil {
			resp.Code = protocol.ErrTimeout
		}
		return resp, err
	}

	var parsed struct {
		Results []protocol.Result `json:"results"`
		Error   string            `json:"error"`
		Code    string            `json:"code"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		resp.Code = protocol.ErrUpstream
		return resp, fmt.Errorf("decode elevation response: %w", err)
	}
	resp.Status = http.StatusOK
	resp.Results = parsed.Results
	resp.Error = parsed.Error
	// An upstream code outside the protocol vocabulary is normalized so
	// downstream consumers can switch on it safely.
	if protocol.IsKnownCode(parsed.Code) {
		resp.Code = parsed.Code
	} else {
		resp.Code = protocol.ErrUpstream
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, req Request) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/%s?locations=%s",
		c.base, url.PathEscape(req.Dataset),
		url.QueryEscape(protocol.EncodeLocations(req.Locations)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(httpReq)
}

func (c *Client) post(ctx context.Context, req Request) ([]byte, error) {
	msg := protocol.QueryMsg{
		ID:        req.ID,
		Type:      protocol.TypeElevQuery,
		Dataset:   req.Dataset,
		Geohashes: req.Geohashes,
		Precision: req.Precision,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/v1/%s", c.base, url.PathEscape(req.Dataset))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d: %s", res.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
