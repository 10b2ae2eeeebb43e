// Package contracthub is a Go client for the ContractHub REST API.
package contracthub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the ContractHub API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Health reports whether the server is connected to its network.
type Health struct {
	Status    string `json:"status"`
	Network   string `json:"network"`
	Connected bool   `json:"connected"`
}

// Network describes the ledger the server is attached to.
type Network struct {
	Network     string `json:"network"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Provider    string `json:"provider"`
}

// Contract is a resolved contract: its address and ABI.
type Contract struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// APIError carries the status and error code returned by the server.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("contracthub api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("contracthub api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the API at rawURL. When httpClient is nil a
// client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken sets the bearer token sent with /api/v1 requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the stored bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Health calls /healthz. A degraded server answers 503 with a body, which is
// returned together with the APIError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.get(ctx, "/healthz", nil, &h)
	return h, err
}

// Network fetches the chain snapshot.
func (c *Client) Network(ctx context.Context) (Network, error) {
	var n Network
	if err := c.get(ctx, "/api/v1/network", nil, &n); err != nil {
		return Network{}, err
	}
	return n, nil
}

// Contract resolves a contract by name. With upgradeable set the server
// resolves it through its Dispatcher.
func (c *Client) Contract(ctx context.Context, name string, upgradeable bool) (Contract, error) {
	var query url.Values
	if upgradeable {
		query = url.Values{"upgradeable": {strconv.FormatBool(true)}}
	}
	var out Contract
	if err := c.get(ctx, "/api/v1/contracts/"+url.PathEscape(name), query, &out); err != nil {
		return Contract{}, err
	}
	return out, nil
}

// ContractAt returns the contract enrolled at address.
func (c *Client) ContractAt(ctx context.Context, address string) (Contract, error) {
	var out Contract
	if err := c.get(ctx, "/api/v1/addresses/"+url.PathEscape(address), nil, &out); err != nil {
		return Contract{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
			if out != nil && apiErr.Code == "" {
				_ = json.Unmarshal(data, out)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
