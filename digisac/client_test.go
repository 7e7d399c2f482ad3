package digisac

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"":                                     "",
		"empresa.digisac.biz":                  "https://empresa.digisac.biz",
		"https://empresa.digisac.biz/":         "https://empresa.digisac.biz",
		"https://empresa.digisac.biz/v1":       "https://empresa.digisac.biz",
		"https://empresa.digisac.biz/v1/users": "https://empresa.digisac.biz",
		" http://localhost:3000// ":            "http://localhost:3000",
	}
	for in, want := range cases {
		assert.Equal(t, want, BaseURL(in), "input %q", in)
	}
}

func TestListAgentsPaginatesDedupesAndSorts(t *testing.T) {
	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		atomic.AddInt32(&pages, 1)

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var users []map[string]any
		switch page {
		case 1:
			for i := 0; i < 100; i++ {
				users = append(users, map[string]any{"id": fmt.Sprintf("u%03d", i), "name": fmt.Sprintf("Zé %03d", i)})
			}
			users[0] = map[string]any{"id": "u000", "name": "", "username": "bruno"}
			users[1] = map[string]any{"id": "u001", "name": "Inativo", "active": false}
		case 2:
			users = []map[string]any{
				{"id": "u000", "name": "duplicate"},
				{"id": "x1", "name": "Álvaro", "active": true},
			}
		default:
			t.Errorf("unexpected page %d", page)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": users})
	}))
	defer srv.Close()

	c := NewClient(Options{})
	agents, err := c.ListAgents(context.Background(), models.GatewayConfig{ApiUrl: srv.URL + "/v1", ApiToken: " tok "})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pages))
	require.Len(t, agents, 100)
	assert.Equal(t, models.Agent{ID: "x1", Name: "Álvaro"}, agents[0])
	assert.Equal(t, models.Agent{ID: "u000", Name: "bruno"}, agents[1])
	for _, a := range agents {
		assert.NotEqual(t, "u001", a.ID)
	}
}

func TestListAgentsStopsAtPageCeiling(t *testing.T) {
	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&pages, 1)
		users := make([]map[string]any, 0, pageSize)
		for i := 0; i < pageSize; i++ {
			users = append(users, map[string]any{"id": fmt.Sprintf("p%d-%d", n, i), "name": "x"})
		}
		_ = json.NewEncoder(w).Encode(users)
	}))
	defer srv.Close()

	agents, err := NewClient(Options{}).ListAgents(context.Background(), models.GatewayConfig{ApiUrl: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(maxPages), atomic.LoadInt32(&pages))
	assert.Len(t, agents, maxPages*pageSize)
}

func TestListChannelsEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/services", r.URL.Path)
		_, _ = w.Write([]byte(`{"services":[{"id":"s1","name":"WhatsApp","type":"whatsapp"},{"id":"s1","name":"dup"},{"id":"s2","name":"Site","type":"webchat"}]}`))
	}))
	defer srv.Close()

	channels, err := NewClient(Options{}).ListChannels(context.Background(), models.GatewayConfig{ApiUrl: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{
		{ID: "s1", Name: "WhatsApp", Type: "whatsapp"},
		{ID: "s2", Name: "Site", Type: "webchat"},
	}, channels)
}

func TestListChannelsFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{}).ListChannels(context.Background(), models.GatewayConfig{ApiUrl: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized token")
}

func TestSendBuildsRequest(t *testing.T) {
	var got messageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cfg := models.GatewayConfig{ApiUrl: srv.URL, ApiToken: "tok", AccountId: "chan-default", UserId: "agent-default"}
	res := NewClient(Options{}).Send(context.Background(), models.Boleto{Phone: "(11) 98888-7777", ServiceId: "chan-x"}, cfg, "olá")
	require.True(t, res.Success)
	assert.Equal(t, messageRequest{Number: "5511988887777", ServiceId: "chan-x", UserId: "agent-default", Text: "olá", DontOpenTicket: true}, got)
}

func TestSendReportsRemoteMessageVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Número não possui WhatsApp"}`))
	}))
	defer srv.Close()

	res := NewClient(Options{}).Send(context.Background(), models.Boleto{Phone: "5511988887777"}, models.GatewayConfig{ApiUrl: srv.URL}, "x")
	assert.False(t, res.Success)
	assert.False(t, res.Network)
	assert.Equal(t, "Número não possui WhatsApp", res.Error)
}

func TestSendStatusWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := NewClient(Options{}).Send(context.Background(), models.Boleto{Phone: "11988887777"}, models.GatewayConfig{ApiUrl: srv.URL}, "x")
	assert.Equal(t, "error 502", res.Error)
}

func TestSendConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewClient(Options{}).Send(context.Background(), models.Boleto{Phone: "11988887777"}, models.GatewayConfig{ApiUrl: url}, "x")
	assert.False(t, res.Success)
	assert.True(t, res.Network)
	assert.Equal(t, ConnectionFailureMessage, res.Error)
}

func TestSendSimulationSkipsNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { atomic.AddInt32(&hits, 1) }))
	defer srv.Close()

	c := NewClient(Options{SimulationDelay: 5 * time.Millisecond})
	res := c.Send(context.Background(), models.Boleto{Phone: "11988887777"}, models.GatewayConfig{ApiUrl: srv.URL, TestMode: true}, "x")
	assert.True(t, res.Success)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestSendWithoutURL(t *testing.T) {
	res := NewClient(Options{}).Send(context.Background(), models.Boleto{Phone: "11988887777"}, models.GatewayConfig{}, "x")
	assert.False(t, res.Success)
	assert.Equal(t, "messaging gateway URL not configured", res.Error)
}
