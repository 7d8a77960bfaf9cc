// Package ikuai implements the HTTP client for the iKuai gateway that
// provisions the actual VPN accounts. The client is stateless per call: it
// re-authenticates before every operation that talks to the device, holding
// the session cookie only for the lifetime of the client instance.
package ikuai

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // the gateway login protocol requires an md5 digest
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// fixedSalt is prepended to the plaintext password before base64 encoding,
	// as the gateway login endpoint expects.
	fixedSalt = "salt_11"

	loginSuccessCode = 10000
	callSuccessCode  = 30000

	funcNamePPPUser = "pppuser"

	// pageSize is the listing page size used for offset pagination.
	pageSize = 100

	// listCacheTTL bounds how long a full listing is served from memory.
	// Absorbs bursts of status polling without hammering the device.
	listCacheTTL = 5 * time.Second

	defaultTimeout = 10 * time.Second
)

// Config holds the connection settings for a gateway client.
type Config struct {
	// BaseURL is the gateway base URL, e.g. "https://192.168.1.1".
	BaseURL string
	// Username is the admin username used to authenticate.
	Username string
	// Password is the admin password used to authenticate.
	Password string
	// SkipVerify skips TLS certificate verification. Gateways commonly run
	// with self-signed certificates.
	SkipVerify bool
	// Timeout is the per-request timeout. Defaults to 10 seconds.
	Timeout time.Duration
}

// Client talks to the iKuai gateway. It has no knowledge of local entities.
// Safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	httpc    *http.Client

	mu       sync.Mutex
	cached   []Account
	cachedAt time.Time
}

// New creates a gateway client from the given configuration.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("gateway base URL cannot be empty")
	}

	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		httpc: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: cfg.SkipVerify, //nolint:gosec // self-signed device certs
				},
			},
		},
	}, nil
}

// loginPayload derives the two password encodings the login endpoint wants:
// an md5 hex digest of the plaintext password, and base64 of the fixed salt
// concatenated with the plaintext password.
func (c *Client) loginPayload() map[string]string {
	sum := md5.Sum([]byte(c.password)) //nolint:gosec // protocol requirement

	return map[string]string{
		"username":          c.username,
		"passwd":            hex.EncodeToString(sum[:]),
		"pass":              base64.StdEncoding.EncodeToString([]byte(fixedSalt + c.password)),
		"remember_password": "true",
	}
}

// Login establishes a session with the gateway. The session cookie is kept
// on the client's cookie jar and reused by subsequent calls. Every mutating
// operation re-authenticates first; authentication is cheap and idempotent.
func (c *Client) Login(ctx context.Context) error {
	var resp struct {
		Result int    `json:"Result"`
		ErrMsg string `json:"ErrMsg"`
	}

	if err := c.postJSON(ctx, "/Action/login", c.loginPayload(), &resp); err != nil {
		return err
	}

	if resp.Result != loginSuccessCode {
		return fmt.Errorf("%w: %s", ErrAuthentication, resp.ErrMsg)
	}

	return nil
}

// CreateAccount provisions a PPP user and returns the remote-assigned id.
// Only username and password are mandatory; everything else defaults via
// NewAddRequest. A returned error does not guarantee the account was not
// created: the request may have taken effect before the response was lost.
func (c *Client) CreateAccount(ctx context.Context, req AddRequest) (int64, error) {
	if err := c.Login(ctx); err != nil {
		return 0, err
	}

	resp, err := c.call(ctx, "add", req)
	if err != nil {
		return 0, err
	}

	id, err := resp.RowID.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: add response carries no usable RowId: %v", ErrTransport, err)
	}

	log.Info().Str("username", req.Username).Int64("remote_id", id).Msg("created gateway account")

	return id, nil
}

// GetAccount returns the remote record matching username, or nil when the
// gateway has no such account. Implemented over ListAccounts, so it inherits
// the listing cache.
func (c *Client) GetAccount(ctx context.Context, username string) (*Account, error) {
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		if accounts[i].Username == username {
			return &accounts[i], nil
		}
	}

	return nil, nil
}

// GetAccountFresh is GetAccount with the listing cache bypassed. Use it when
// remote truth must reflect a mutation that just happened, e.g. confirming a
// create or probing existence after a failed delete.
func (c *Client) GetAccountFresh(ctx context.Context, username string) (*Account, error) {
	accounts, err := c.ListAccountsFresh(ctx)
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		if accounts[i].Username == username {
			return &accounts[i], nil
		}
	}

	return nil, nil
}

// ListAccounts returns the full remote account set. Results are cached for a
// few seconds per client instance; use ListAccountsFresh when a guaranteed
// fresh listing is needed, e.g. right after a mutating call.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	c.mu.Lock()
	if c.cached != nil && time.Since(c.cachedAt) < listCacheTTL {
		accounts := c.cached
		c.mu.Unlock()

		return accounts, nil
	}
	c.mu.Unlock()

	return c.ListAccountsFresh(ctx)
}

// ListAccountsFresh bypasses the listing cache, fetches every page from the
// gateway and refreshes the cache.
func (c *Client) ListAccountsFresh(ctx context.Context) ([]Account, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	// Offset pagination with the device's own index arithmetic. The limit
	// parameter is a "start,end" range; the device reports the running total
	// alongside each page.
	index := 0
	end := pageSize

	var all []Account

	for {
		page, total, err := c.listPage(ctx, index, end)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		index += end + 1
		end = index + pageSize

		if index+1 > total {
			break
		}
	}

	c.mu.Lock()
	c.cached = all
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return all, nil
}

// listPage fetches one listing page plus the running total.
func (c *Client) listPage(ctx context.Context, index, end int) ([]Account, int, error) {
	param := map[string]string{
		"TYPE":     "total,data",
		"limit":    fmt.Sprintf("%d,%d", index, end),
		"ORDER_BY": "",
		"ORDER":    "",
		"FINDS":    "username,name,address,phone,comment",
		"KEYWORDS": "",
		"FILTER1":  "",
		"FILTER2":  "",
		"FILTER3":  "",
		"FILTER4":  "",
		"FILTER5":  "",
	}

	resp, err := c.call(ctx, "show", param)
	if err != nil {
		return nil, 0, err
	}

	var data struct {
		Total int       `json:"total"`
		Data  []Account `json:"data"`
	}

	if len(resp.Data) > 0 {
		if err = json.Unmarshal(resp.Data, &data); err != nil {
			return nil, 0, fmt.Errorf("%w: malformed listing payload: %v", ErrTransport, err)
		}
	}

	return data.Data, data.Total, nil
}

// UpdateAccount performs a full-record edit. The payload must carry the
// complete field set; the gateway replaces the whole record.
func (c *Client) UpdateAccount(ctx context.Context, remoteID int64, req EditRequest) error {
	if err := c.Login(ctx); err != nil {
		return err
	}

	req.ID = remoteID

	if _, err := c.call(ctx, "edit", req); err != nil {
		return err
	}

	log.Info().Int64("remote_id", remoteID).Msg("updated gateway account")

	return nil
}

// DeleteAccount removes the account with the given remote id. Callers are
// responsible for the idempotence fallback: on failure, probe existence
// before concluding the delete did not happen.
func (c *Client) DeleteAccount(ctx context.Context, remoteID int64) error {
	if err := c.Login(ctx); err != nil {
		return err
	}

	param := map[string]string{"id": strconv.FormatInt(remoteID, 10)}

	if _, err := c.call(ctx, "del", param); err != nil {
		return err
	}

	log.Info().Int64("remote_id", remoteID).Msg("deleted gateway account")

	return nil
}

// callResponse is the envelope of every /Action/call response.
type callResponse struct {
	Result int             `json:"Result"`
	ErrMsg string          `json:"ErrMsg"`
	RowID  json.Number     `json:"RowId"`
	Data   json.RawMessage `json:"Data"`
}

// call submits an action against the PPP user function and checks the
// application-level result code.
func (c *Client) call(ctx context.Context, action string, param any) (*callResponse, error) {
	body := map[string]any{
		"action":    action,
		"func_name": funcNamePPPUser,
		"param":     param,
	}

	var resp callResponse
	if err := c.postJSON(ctx, "/Action/call", body, &resp); err != nil {
		return nil, err
	}

	if resp.Result != callSuccessCode {
		msg := resp.ErrMsg
		if msg == "" {
			msg = "unknown error"
		}

		return nil, &APIError{Action: action, Result: resp.Result, Message: msg}
	}

	return &resp, nil
}

// postJSON posts a JSON body and decodes a JSON response. Any network or
// decoding failure is reported as a transport error.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close gateway response body")
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected HTTP status %d", ErrTransport, httpResp.StatusCode)
	}

	if err = json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrTransport, err)
	}

	return nil
}
