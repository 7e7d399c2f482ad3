// Package omie talks to the Omie ERP accounts receivable API.
package omie

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
)

const (
	pageSize        = 100
	maxPages        = 20
	defaultSimDelay = time.Second
)

type Client struct {
	baseURL  string
	http     *http.Client
	simDelay time.Duration
	limiter  <-chan time.Time
}

type Options struct {
	HTTPClient      *http.Client
	SimulationDelay time.Duration
	// MinInterval spaces consecutive calls; zero disables throttling.
	MinInterval time.Duration
}

func NewClient(baseURL string, opts Options) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     opts.HTTPClient,
		simDelay: opts.SimulationDelay,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.simDelay <= 0 {
		c.simDelay = defaultSimDelay
	}
	if opts.MinInterval > 0 {
		c.limiter = time.Tick(opts.MinInterval)
	}
	return c
}

type callRequest struct {
	Call      string `json:"call"`
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
	Param     []any  `json:"param"`
}

type faultResponse struct {
	FaultString string `json:"faultstring"`
	FaultCode   string `json:"faultcode"`
}

// call posts one API method and decodes the reply into out.
func (c *Client) call(ctx context.Context, cfg models.ERPConfig, path, method string, param any, out any) error {
	if c.limiter != nil {
		select {
		case <-c.limiter:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	body, err := json.Marshal(callRequest{
		Call:      method,
		AppKey:    cfg.AppKey,
		AppSecret: cfg.AppSecret,
		Param:     []any{param},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.ConnectivityError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.ConnectivityError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fault faultResponse
		_ = json.Unmarshal(raw, &fault)
		if msg := strings.TrimSpace(fault.FaultString); msg != "" {
			return utils.RemoteError("%s", msg)
		}
		return utils.RemoteError("omie error: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return utils.ParseError("omie %s: %v", method, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
