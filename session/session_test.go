package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/store"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackOnMalformedBlobs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Set(ctx, store.KeyGatewayConfig, []byte("{")))
	require.NoError(t, st.Set(ctx, store.KeyBoletos, []byte(`{"not":"an array"}`)))
	require.NoError(t, st.Set(ctx, store.KeyERPConfig, []byte(`{"appKey":"k","appSecret":"s"}`)))

	s := Load(ctx, st)
	assert.Equal(t, models.DefaultMessageTemplate, s.GatewayConfig().MessageTemplate)
	assert.Empty(t, s.Records())
	assert.Equal(t, "k", s.ERPConfig().AppKey)
}

func TestUpdatePersistsAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := Load(ctx, st)

	require.NoError(t, s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		return append(list, models.Boleto{ID: "omie-1", Status: models.BoletoStatusPending}), nil
	}))
	assert.Equal(t, uint64(1), s.Version())

	reloaded := Load(ctx, st)
	require.Len(t, reloaded.Records(), 1)
	assert.Equal(t, "omie-1", reloaded.Records()[0].ID)

	boom := errors.New("boom")
	err := s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.Records(), 1)
	assert.Equal(t, uint64(1), s.Version())
}

func TestRecordsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := Load(ctx, store.NewMemory())
	require.NoError(t, s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		return append(list, models.Boleto{ID: "a", Phone: "1"}), nil
	}))
	list := s.Records()
	list[0].Phone = "changed"
	got, ok := s.Record("a")
	require.True(t, ok)
	assert.Equal(t, "1", got.Phone)
}

func TestUpdateRecordDeleteClear(t *testing.T) {
	ctx := context.Background()
	s := Load(ctx, store.NewMemory())
	require.NoError(t, s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		return append(list, models.Boleto{ID: "a"}, models.Boleto{ID: "b"}), nil
	}))

	b, err := s.UpdateRecord(ctx, "b", func(b *models.Boleto) error {
		b.Phone = "11988887777"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "11988887777", b.Phone)

	_, err = s.UpdateRecord(ctx, "zzz", func(*models.Boleto) error { return nil })
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	require.NoError(t, s.Delete(ctx, "a"))
	require.Len(t, s.Records(), 1)
	assert.ErrorIs(t, s.Delete(ctx, "a"), utils.ErrorRecordNotFound)

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Records())
}

func TestLogRingKeepsNewestFifty(t *testing.T) {
	s := Load(context.Background(), store.NewMemory())
	for i := 0; i < 60; i++ {
		s.AddLog(models.NewLogEntry(models.LogLevelInfo, fmt.Sprintf("event %d", i)))
	}
	logs := s.Logs()
	require.Len(t, logs, models.MaxLogEntries)
	assert.Equal(t, "event 59", logs[0].Message)
	assert.Equal(t, "event 10", logs[len(logs)-1].Message)
}

func TestConfigPersistence(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := Load(ctx, st)
	cfg := s.GatewayConfig()
	cfg.AccountId = "chan-1"
	cfg.TestMode = true
	require.NoError(t, s.SetGatewayConfig(ctx, cfg))
	require.NoError(t, s.SetERPConfig(ctx, models.ERPConfig{AppKey: "k", AppSecret: "s", TestMode: true}))

	reloaded := Load(ctx, st)
	assert.Equal(t, "chan-1", reloaded.GatewayConfig().AccountId)
	assert.True(t, reloaded.GatewayConfig().TestMode)
	assert.True(t, reloaded.ERPConfig().TestMode)
}

func TestLoadRecoversInterruptedDispatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, store.SaveJSON(ctx, st, store.KeyBoletos, []models.Boleto{
		{ID: "a", Status: models.BoletoStatusProcessing},
		{ID: "b", Status: models.BoletoStatusSent},
	}))
	s := Load(ctx, st)
	a, _ := s.Record("a")
	assert.Equal(t, models.BoletoStatusFailed, a.Status)
	assert.Equal(t, InterruptedError, a.Error)
	b, _ := s.Record("b")
	assert.Equal(t, models.BoletoStatusSent, b.Status)
}
