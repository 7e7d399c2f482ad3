// Package session owns the record collection, both configurations and the
// operator log for one running service.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/store"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/sirupsen/logrus"
)

const InterruptedError = "dispatch interrupted"

type Session struct {
	st     store.Store
	logger *logrus.Logger

	mu      sync.Mutex
	boletos []models.Boleto
	gateway models.GatewayConfig
	erp     models.ERPConfig
	version uint64

	logMu sync.Mutex
	logs  []models.LogEntry
}

// Load restores the session from st. Unreadable blobs fall back to defaults.
func Load(ctx context.Context, st store.Store) *Session {
	s := &Session{
		st:      st,
		logger:  config.GetLogger(),
		gateway: models.DefaultGatewayConfig(),
	}

	var gw models.GatewayConfig
	if store.LoadJSON(ctx, st, store.KeyGatewayConfig, &gw) {
		s.gateway = gw
	}
	var erp models.ERPConfig
	if store.LoadJSON(ctx, st, store.KeyERPConfig, &erp) {
		s.erp = erp
	}
	var list []models.Boleto
	if store.LoadJSON(ctx, st, store.KeyBoletos, &list) {
		// A process that stopped mid-send leaves records in processing.
		for i := range list {
			if list[i].Status == models.BoletoStatusProcessing {
				list[i].Status = models.BoletoStatusFailed
				list[i].Error = InterruptedError
			}
		}
		s.boletos = list
	}
	return s
}

// Records returns a copy of the collection.
func (s *Session) Records() []models.Boleto {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBoletos(s.boletos)
}

func (s *Session) Record(id string) (models.Boleto, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := models.IndexOf(s.boletos, id); i >= 0 {
		return s.boletos[i], true
	}
	return models.Boleto{}, false
}

// Version increases with every change to the collection.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Update replaces the collection with fn's result and persists it. fn runs
// under the session lock on a private copy; returning an error discards it.
func (s *Session) Update(ctx context.Context, fn func([]models.Boleto) ([]models.Boleto, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneBoletos(s.boletos))
	if err != nil {
		return err
	}
	s.boletos = next
	s.version++
	return s.persist(ctx, store.KeyBoletos, next)
}

// UpdateRecord applies fn to the record with the given id.
func (s *Session) UpdateRecord(ctx context.Context, id string, fn func(*models.Boleto) error) (models.Boleto, error) {
	var out models.Boleto
	err := s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		i := models.IndexOf(list, id)
		if i < 0 {
			return nil, utils.ErrorRecordNotFound
		}
		if err := fn(&list[i]); err != nil {
			return nil, err
		}
		out = list[i]
		return list, nil
	})
	return out, err
}

func (s *Session) Delete(ctx context.Context, id string) error {
	return s.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		i := models.IndexOf(list, id)
		if i < 0 {
			return nil, utils.ErrorRecordNotFound
		}
		return append(list[:i], list[i+1:]...), nil
	})
}

func (s *Session) Clear(ctx context.Context) error {
	return s.Update(ctx, func([]models.Boleto) ([]models.Boleto, error) {
		return []models.Boleto{}, nil
	})
}

func (s *Session) GatewayConfig() models.GatewayConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway
}

func (s *Session) SetGatewayConfig(ctx context.Context, cfg models.GatewayConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = cfg
	return s.persist(ctx, store.KeyGatewayConfig, cfg)
}

func (s *Session) ERPConfig() models.ERPConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.erp
}

func (s *Session) SetERPConfig(ctx context.Context, cfg models.ERPConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erp = cfg
	return s.persist(ctx, store.KeyERPConfig, cfg)
}

// Store exposes the backend so callers can use its optional capabilities.
func (s *Session) Store() store.Store {
	return s.st
}

func (s *Session) persist(ctx context.Context, key string, v any) error {
	if err := store.SaveJSON(ctx, s.st, key, v); err != nil {
		config.LogError(s.logger, "session", "persist", "save blob", key, err)
		return err
	}
	return nil
}

// AddLog records an operator-facing entry, keeping the newest MaxLogEntries.
func (s *Session) AddLog(e models.LogEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logs = append([]models.LogEntry{e}, s.logs...)
	if len(s.logs) > models.MaxLogEntries {
		s.logs = s.logs[:models.MaxLogEntries]
	}
}

// Logs returns the entries newest first.
func (s *Session) Logs() []models.LogEntry {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

func cloneBoletos(list []models.Boleto) []models.Boleto {
	out := make([]models.Boleto, len(list))
	copy(out, list)
	return out
}
