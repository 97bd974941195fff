package central

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	omsync "github.com/ria8651/open-msupply/internal/sync"
)

const (
	// AppName identifies this server to central.
	AppName = "omsupply-sync"

	// SyncVersion is the sync API version this site speaks.
	SyncVersion = "5"
)

// Client abstracts HTTP communication with the central server.
// Implementations must be safe for concurrent use.
type Client interface {
	// GetSiteInfo returns the identity central holds for this site.
	GetSiteInfo(ctx context.Context) (*omsync.SiteInfo, error)

	// PullRecords returns up to limit central records after cursor.
	PullRecords(ctx context.Context, cursor int64, limit int) (*omsync.CentralBatch, error)

	// Push sends a batch of local changes and returns central's ack.
	Push(ctx context.Context, req *omsync.PushRequest) (*omsync.PushAck, error)
}

// Credentials authenticate this site against central.
type Credentials struct {
	Username   string
	Password   string
	HardwareID string
}

// HTTPClient implements Client using net/http.
type HTTPClient struct {
	baseURL      string
	creds        Credentials
	passwordHash string
	appVersion   string
	httpClient   *http.Client
}

// NewHTTPClient creates a central HTTP client.
func NewHTTPClient(centralURL string, creds Credentials, appVersion string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	sum := sha256.Sum256([]byte(creds.Password))
	return &HTTPClient{
		baseURL:      strings.TrimSuffix(centralURL, "/"),
		creds:        creds,
		passwordHash: hex.EncodeToString(sum[:]),
		appVersion:   appVersion,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (c *HTTPClient) WithHTTPClient(client *http.Client) *HTTPClient {
	c.httpClient = client
	return c
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.SetBasicAuth(c.creds.Username, c.passwordHash)
	req.Header.Set("User-Agent", AppName+"/"+c.appVersion)
	req.Header.Set("app-name", AppName)
	req.Header.Set("app-version", c.appVersion)
	req.Header.Set("sync-version", SyncVersion)
	if strings.TrimSpace(c.creds.HardwareID) != "" {
		req.Header.Set("msupply-site-uuid", c.creds.HardwareID)
	}
}

func newSyncError(op string, statusCode int, body []byte) *omsync.SyncError {
	msg := ""
	if len(body) > 0 && statusCode >= 400 {
		if len(body) > 200 {
			msg = string(body[:200]) + "..."
		} else {
			msg = string(body)
		}
	}
	return &omsync.SyncError{
		Operation:  op,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP %d: %s", statusCode, msg),
	}
}

// do sends req and decodes a 200 response into out.
func (c *HTTPClient) do(op string, req *http.Request, out any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &omsync.SyncError{Operation: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return newSyncError(op, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &omsync.SyncError{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *HTTPClient) GetSiteInfo(ctx context.Context) (*omsync.SiteInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/central/sync/site-info", nil)
	if err != nil {
		return nil, &omsync.SyncError{Operation: "site_info", Err: err}
	}

	var info omsync.SiteInfo
	if err := c.do("site_info", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) PullRecords(ctx context.Context, cursor int64, limit int) (*omsync.CentralBatch, error) {
	q := url.Values{}
	q.Set("cursor", fmt.Sprintf("%d", cursor))
	q.Set("limit", fmt.Sprintf("%d", limit))
	reqURL := c.baseURL + "/central/sync/central-records?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &omsync.SyncError{Operation: "pull_central", Err: err}
	}

	var batch omsync.CentralBatch
	if err := c.do("pull_central", req, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *HTTPClient) Push(ctx context.Context, push *omsync.PushRequest) (*omsync.PushAck, error) {
	body, err := json.Marshal(push)
	if err != nil {
		return nil, &omsync.SyncError{Operation: "push_remote", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/central/sync/push", bytes.NewReader(body))
	if err != nil {
		return nil, &omsync.SyncError{Operation: "push_remote", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var ack omsync.PushAck
	if err := c.do("push_remote", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

var _ Client = (*HTTPClient)(nil)
