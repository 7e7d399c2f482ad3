// Package digisac is the client for the DigiSac WhatsApp gateway.
package digisac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
)

const (
	pageSize        = 100
	maxPages        = 10
	defaultSimDelay = 500 * time.Millisecond
)

type Client struct {
	http     *http.Client
	simDelay time.Duration
}

type Options struct {
	HTTPClient      *http.Client
	SimulationDelay time.Duration
}

func NewClient(opts Options) *Client {
	c := &Client{http: opts.HTTPClient, simDelay: opts.SimulationDelay}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.simDelay <= 0 {
		c.simDelay = defaultSimDelay
	}
	return c
}

var (
	versionSuffix = regexp.MustCompile(`/v1(/.*)?$`)
	hasScheme     = regexp.MustCompile(`^https?://`)
)

// BaseURL normalises an operator-entered gateway address: the /v1 suffix and
// trailing slashes are dropped and https:// is assumed when no scheme is set.
func BaseURL(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}
	cleaned = versionSuffix.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimRight(cleaned, "/")
	if !hasScheme.MatchString(cleaned) {
		cleaned = "https://" + cleaned
	}
	return cleaned
}

func (c *Client) newRequest(ctx context.Context, cfg models.GatewayConfig, method, path string, body io.Reader) (*http.Request, error) {
	base := BaseURL(cfg.ApiUrl)
	if base == "" {
		return nil, utils.ValidationError("messaging gateway URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return nil, utils.ValidationError("invalid gateway URL: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.ApiToken))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getList fetches one listing page and returns its items whichever envelope
// the gateway used: a bare array or an object keyed by data or name.
func (c *Client) getList(ctx context.Context, cfg models.GatewayConfig, path string, key string) ([]json.RawMessage, error) {
	req, err := c.newRequest(ctx, cfg, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.ConnectivityError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.ConnectivityError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.RemoteError("%s", remoteMessage(raw, resp.StatusCode))
	}
	return decodeList(raw, key)
}

func decodeList(raw []byte, key string) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, utils.ParseError("gateway listing: %v", err)
	}
	for _, k := range []string{"data", key} {
		if v, ok := envelope[k]; ok {
			if err := json.Unmarshal(v, &list); err == nil {
				return list, nil
			}
		}
	}
	return nil, nil
}

func remoteMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	return fmt.Sprintf("error %d", status)
}
