package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/mmdatafocus/boleto_notifier/dispatch"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestPublishDispatchOutcome(t *testing.T) {
	ctx := context.Background()
	srv, client := newFakeClient(t)

	pub, err := NewDispatchPublisher(ctx, client, "boleto-dispatch", true)
	require.NoError(t, err)
	defer pub.Stop()

	out := dispatch.Outcome{
		BoletoId: "omie-1",
		Status:   models.BoletoStatusSent,
		SentAt:   time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Trigger:  "api",
	}
	require.NoError(t, pub.Publish(ctx, out))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventDispatchOutcome, msgs[0].Attributes[AttributeEventType])
	assert.Equal(t, "sent", msgs[0].Attributes["status"])

	var got dispatch.Outcome
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, out.BoletoId, got.BoletoId)
	assert.Equal(t, out.Status, got.Status)
	assert.Equal(t, out.Trigger, got.Trigger)
	assert.True(t, out.SentAt.Equal(got.SentAt))
}

func TestNewDispatchPublisherRequiresTopic(t *testing.T) {
	_, client := newFakeClient(t)
	_, err := NewDispatchPublisher(context.Background(), client, " ", false)
	assert.Error(t, err)
	_, err = NewDispatchPublisher(context.Background(), nil, "x", false)
	assert.Error(t, err)
}

func TestDecodeERPImport(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(`{"reason":"nightly"}`))
	body := []byte(`{"message":{"data":"` + data + `","messageId":"42"},"subscription":"projects/p/subscriptions/s"}`)

	env, payload, err := DecodeERPImport(body)
	require.NoError(t, err)
	assert.Equal(t, "42", env.Message.MessageId)
	assert.Equal(t, "nightly", payload.Reason)

	_, _, err = DecodeERPImport([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPush)
	_, _, err = DecodeERPImport([]byte(`{"message":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPush)
}
