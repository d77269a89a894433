// Package exchange is the REST client for the upstream trading API. Each
// collection maps to one call accepting {auth?, start, end, limit,
// symbol?} and returning either a bare record array or a wrapped
// {records, nextPageCursor} object.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type Client struct {
	host       string
	httpClient *http.Client
	lastNonce  atomic.Int64
}

// APIError carries the upstream HTTP status plus the error code string the
// fetch wrapper classifies on.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error (%d) %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests || e.Code == "ERR_RATE_LIMIT"
}

func (e *APIError) NonceTooSmall() bool {
	return strings.Contains(strings.ToLower(e.Message), "nonce: small")
}

func (e *APIError) AuthFailed() bool {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return true
	}
	return e.Code == "ERR_AUTH_FAIL" || strings.Contains(strings.ToLower(e.Message), "apikey: invalid")
}

// UserIneligible marks accounts the upstream refuses to serve history for;
// callers treat it as an empty result rather than a failure.
func (e *APIError) UserIneligible() bool {
	return strings.Contains(strings.ToLower(e.Message), "not eligible")
}

// Auth is one account's credential pair.
type Auth struct {
	Key    string
	Secret string
}

// Query is the shared range/limit shape of every history call. End 0 means
// "now"; Limit 0 leaves the page size to the upstream default.
type Query struct {
	Start  int64
	End    int64
	Limit  int
	Symbol string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Start > 0 {
		v.Set("start", strconv.FormatInt(q.Start, 10))
	}
	if q.End > 0 {
		v.Set("end", strconv.FormatInt(q.End, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func NewClient(httpClient *http.Client, host string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 25 * time.Second}
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
	}
}

// nonce returns a strictly increasing microsecond value. The upstream
// rejects reused nonces with a "nonce: small" error.
func (c *Client) nonce() string {
	for {
		prev := c.lastNonce.Load()
		next := time.Now().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if c.lastNonce.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}

func (c *Client) doPublic(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) doSigned(ctx context.Context, auth Auth, path string, body map[string]any) ([]byte, error) {
	if body == nil {
		body = map[string]any{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	nonce := c.nonce()
	mac := hmac.New(sha512.New384, []byte(auth.Secret))
	mac.Write([]byte("/api" + path + nonce + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", auth.Key)
	req.Header.Set("api-nonce", nonce)
	req.Header.Set("api-signature", sig)
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// parseAPIError decodes the upstream error convention
// ["error", CODE, "message"] and falls back to the raw body.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status, Message: string(body)}
	var parts []any
	if err := json.Unmarshal(body, &parts); err == nil && len(parts) >= 2 {
		if code, ok := parts[1].(string); ok {
			apiErr.Code = code
		}
		if len(parts) >= 3 {
			if msg, ok := parts[2].(string); ok {
				apiErr.Message = msg
			}
		}
	}
	return apiErr
}
