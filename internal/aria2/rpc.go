package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinoosan/manifest-sync/internal/metrics"
)

// --- JSON-RPC wire types ---

type rpcReq struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var defaultHTTP = &http.Client{Timeout: 10 * time.Second}

// Call invokes method over HTTP JSON-RPC. The secret token is prepended to
// params when the client has one.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	timer := prometheus.NewTimer(metrics.Aria2RPCLatency.WithLabelValues(method))
	defer timer.ObserveDuration()

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}
	body, err := json.Marshal(rpcReq{Jsonrpc: "2.0", Method: method, ID: "manifest-sync", Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := defaultHTTP.Do(req)
	if err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 http %d: %s", resp.StatusCode, string(b))
	}

	var rr rpcResp
	if err := json.Unmarshal(b, &rr); err != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 rpc decode: %w (%s)", err, string(b))
	}
	if rr.Error != nil {
		metrics.Aria2RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("aria2 rpc error %d: %s", rr.Error.Code, rr.Error.Message)
	}
	return rr.Result, nil
}

// Status is the subset of aria2.tellStatus used to explain failed transfers.
type Status struct {
	GID          string `json:"gid"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Files        []struct {
		Path string `json:"path"`
		URIs []struct {
			URI string `json:"uri"`
		} `json:"uris"`
	} `json:"files"`
}

// Path returns the local path of the first file, if known.
func (s *Status) Path() string {
	if len(s.Files) == 0 {
		return ""
	}
	return s.Files[0].Path
}

// URI returns the first source URI, if known.
func (s *Status) URI() string {
	if len(s.Files) == 0 || len(s.Files[0].URIs) == 0 {
		return ""
	}
	return s.Files[0].URIs[0].URI
}

// TellStatus fetches the state of the download identified by gid.
func (c *Client) TellStatus(ctx context.Context, gid string) (*Status, error) {
	keys := []string{"gid", "status", "errorCode", "errorMessage", "files"}
	raw, err := c.Call(ctx, "aria2.tellStatus", gid, keys)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode tellStatus: %w", err)
	}
	return &st, nil
}
