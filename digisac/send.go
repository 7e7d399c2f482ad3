package digisac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
)

const ConnectionFailureMessage = "connection failure"

// SendResult is the outcome of one message send. Network marks transport
// failures so operators can tell them apart from gateway rejections.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Network bool   `json:"network,omitempty"`
}

type messageRequest struct {
	Number         string `json:"number"`
	ServiceId      string `json:"serviceId"`
	UserId         string `json:"userId"`
	Text           string `json:"text"`
	DontOpenTicket bool   `json:"dontOpenTicket"`
}

// Send delivers message to the record's phone. In simulation mode it waits a
// fixed delay and succeeds without touching the network.
func (c *Client) Send(ctx context.Context, b models.Boleto, cfg models.GatewayConfig, message string) SendResult {
	if cfg.TestMode {
		t := time.NewTimer(c.simDelay)
		defer t.Stop()
		select {
		case <-t.C:
			return SendResult{Success: true}
		case <-ctx.Done():
			return SendResult{Error: ctx.Err().Error()}
		}
	}

	body, err := json.Marshal(messageRequest{
		Number:         utils.WithCountryPrefix(b.Phone),
		ServiceId:      b.ChannelFor(cfg),
		UserId:         b.AgentFor(cfg),
		Text:           message,
		DontOpenTicket: true,
	})
	if err != nil {
		return SendResult{Error: err.Error()}
	}
	req, err := c.newRequest(ctx, cfg, http.MethodPost, "/v1/messages", bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: utils.ErrorMessage(err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return SendResult{Error: err.Error()}
		}
		return SendResult{Error: ConnectionFailureMessage, Network: true}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return SendResult{Success: true}
	}
	return SendResult{Error: remoteMessage(raw, resp.StatusCode)}
}
