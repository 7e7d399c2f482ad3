// Package store persists the session blobs (configuration and the record
// collection) in a key-value backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/sirupsen/logrus"
)

// Keys of the persisted blobs.
const (
	KeyGatewayConfig = "digisac_config"
	KeyERPConfig     = "omie_config"
	KeyBoletos       = "digisac_boletos"
)

var ErrLockNotObtained = errors.New("lock held by another worker")

// Store maps string keys to opaque JSON blobs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Lock is a held cross-process lock. Refresh extends it by ttl and reports
// ErrLockNotObtained once the lock has expired or moved to another holder.
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker is implemented by backends able to coordinate several processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Open builds the backend selected by settings.
func Open(ctx context.Context, s *config.Settings) (Store, error) {
	switch s.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemory(), nil
	case config.StoreDriverBadger:
		return OpenBadger(s.StorePath)
	case config.StoreDriverRedis:
		rdb, err := config.ConnectRedisWithRetry(ctx, s.RedisAddress)
		if err != nil {
			return nil, err
		}
		return NewRedis(rdb, config.GetRedisLock(), "boleto:"), nil
	case config.StoreDriverPostgres:
		return OpenPostgres(ctx, s.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown store driver %q", s.StoreDriver)
}

// LoadJSON decodes key into dest. A missing key, a read error or a malformed
// blob all report false and leave dest untouched.
func LoadJSON(ctx context.Context, st Store, key string, dest any) bool {
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{"key": key}).Warn("store read failed: " + err.Error())
		return false
	}
	if !ok || len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		config.GetLogger().WithFields(logrus.Fields{"key": key}).Warn("discarding malformed blob: " + err.Error())
		return false
	}
	return true
}

// SaveJSON overwrites key with the JSON encoding of v.
func SaveJSON(ctx context.Context, st Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return st.Set(ctx, key, raw)
}
