package aria2

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultRPCPath is the endpoint aria2 serves JSON-RPC and WebSocket on.
const DefaultRPCPath = "/jsonrpc"

// Client addresses the RPC interface of an aria2c process started with
// --enable-rpc.
type Client struct {
	baseURL *url.URL
	secret  string
}

// NewClient returns a client for the JSON-RPC endpoint at rawURL.
func NewClient(rawURL, secret string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid rpc url %q", rawURL)
	}
	if u.Path == "" {
		u.Path = DefaultRPCPath
	}
	return &Client{baseURL: u, secret: secret}, nil
}

// NewLocalClient returns a client for an aria2c listening on 127.0.0.1:port.
func NewLocalClient(port int, secret string) (*Client, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid rpc port %d", port)
	}
	return NewClient("http://127.0.0.1:"+strconv.Itoa(port)+DefaultRPCPath, secret)
}

func (c *Client) BaseURL() *url.URL { return c.baseURL }
func (c *Client) Secret() string    { return c.secret }
