// Package dispatch sends billing notifications for records, one at a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/digisac"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/session"
	"github.com/mmdatafocus/boleto_notifier/store"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boleto_dispatch_total",
		Help: "Dispatch attempts, labeled by outcome",
	}, []string{"outcome"})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "boleto_dispatch_duration_seconds",
		Help:    "Latency of a single dispatch, personalisation included",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

const (
	lockKey = "dispatch-all"
	lockTTL = 10 * time.Minute
)

type Gateway interface {
	Send(ctx context.Context, b models.Boleto, cfg models.GatewayConfig, message string) digisac.SendResult
}

type Personalizer interface {
	Personalize(ctx context.Context, b models.Boleto, template string) (string, error)
}

// Outcome is published after every completed attempt.
type Outcome struct {
	BoletoId string              `json:"boleto_id"`
	Status   models.BoletoStatus `json:"status"`
	Error    string              `json:"error,omitempty"`
	SentAt   time.Time           `json:"sent_at"`
	Trigger  string              `json:"trigger"`
}

type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

type Orchestrator struct {
	sess         *session.Session
	gateway      Gateway
	personalizer Personalizer
	publisher    Publisher
	logger       *logrus.Logger

	busy atomic.Bool
}

// New wires an orchestrator. personalizer and publisher are optional.
func New(sess *session.Session, gateway Gateway, personalizer Personalizer, publisher Publisher) *Orchestrator {
	return &Orchestrator{
		sess:         sess,
		gateway:      gateway,
		personalizer: personalizer,
		publisher:    publisher,
		logger:       config.GetLogger(),
	}
}

// Busy reports whether a bulk send is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// SendOne dispatches a single record. Validation failures are logged once
// and leave the record untouched; otherwise the record goes through
// processing and ends as sent or failed.
func (o *Orchestrator) SendOne(ctx context.Context, id string) (models.Boleto, error) {
	b, ok := o.sess.Record(id)
	if !ok {
		o.sess.AddLog(models.NewLogEntry(models.LogLevelError, fmt.Sprintf("record %s not found", id)))
		dispatchTotal.WithLabelValues("rejected").Inc()
		return models.Boleto{}, utils.ErrorRecordNotFound
	}
	if err := precheck(b); err != nil {
		o.sess.AddLog(models.NewErrorLogEntry(utils.ErrorMessage(err), err))
		dispatchTotal.WithLabelValues("rejected").Inc()
		return b, err
	}

	start := time.Now()
	b, err := o.sess.UpdateRecord(ctx, id, func(rec *models.Boleto) error {
		if err := precheck(*rec); err != nil {
			return err
		}
		rec.Status = models.BoletoStatusProcessing
		rec.Error = ""
		return nil
	})
	switch {
	case errors.Is(err, utils.ErrValidation), errors.Is(err, utils.ErrorRecordNotFound):
		o.sess.AddLog(models.NewErrorLogEntry(utils.ErrorMessage(err), err))
		dispatchTotal.WithLabelValues("rejected").Inc()
		return b, err
	case err != nil:
		// The in-memory record moved to processing; only the snapshot write failed.
		config.LogWarn(o.logger, "dispatch", "SendOne", "persist processing", id, err)
	}

	gw := o.sess.GatewayConfig()
	message := o.buildMessage(ctx, b, gw.MessageTemplate)
	res := o.gateway.Send(ctx, b, gw, message)

	final, err := o.complete(ctx, id, res)
	dispatchDuration.Observe(time.Since(start).Seconds())
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return final, err
	}

	if res.Success {
		dispatchTotal.WithLabelValues("sent").Inc()
		o.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, "sent to: "+final.CustomerName))
	} else {
		dispatchTotal.WithLabelValues("failed").Inc()
		entry := models.NewLogEntry(models.LogLevelError, "dispatch failed: "+res.Error)
		entry.Network = entry.Network || res.Network
		o.sess.AddLog(entry)
	}
	o.publish(ctx, final)

	if !res.Success {
		if res.Network {
			return final, utils.ConnectivityError(errors.New(res.Error))
		}
		return final, utils.RemoteError("%s", res.Error)
	}
	return final, nil
}

func precheck(b models.Boleto) error {
	if !b.Status.CanDispatch() {
		return utils.ValidationError("%s is %s and cannot be sent", b.CustomerName, b.Status)
	}
	if !b.HasDialablePhone() {
		return utils.ValidationError("incomplete phone: %s", b.CustomerName)
	}
	return nil
}

// complete records the gateway result. The record always leaves processing.
func (o *Orchestrator) complete(ctx context.Context, id string, res digisac.SendResult) (models.Boleto, error) {
	to := models.BoletoStatusSent
	if !res.Success {
		to = models.BoletoStatusFailed
	}
	b, err := o.sess.UpdateRecord(ctx, id, func(rec *models.Boleto) error {
		if rec.Status != models.BoletoStatusProcessing {
			return nil
		}
		if err := rec.Status.Transition(to); err != nil {
			return err
		}
		rec.Status = to
		rec.Error = ""
		if !res.Success {
			rec.Error = res.Error
			if rec.Error == "" {
				rec.Error = digisac.ConnectionFailureMessage
			}
		}
		return nil
	})
	if errors.Is(err, utils.ErrorRecordNotFound) {
		// Deleted while in flight; nothing left to update.
		o.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, fmt.Sprintf("record %s removed during dispatch", id)))
		return models.Boleto{ID: id}, err
	}
	if err != nil {
		config.LogError(o.logger, "dispatch", "complete", "persist outcome", id, err)
	}
	return b, err
}

// buildMessage personalises the template, falling back to plain
// placeholder substitution.
func (o *Orchestrator) buildMessage(ctx context.Context, b models.Boleto, template string) string {
	if template == "" {
		template = models.DefaultMessageTemplate
	}
	if o.personalizer != nil {
		msg, err := o.personalizer.Personalize(ctx, b, template)
		if err == nil && msg != "" && msg != template {
			return msg
		}
		if err != nil {
			config.LogWarn(o.logger, "dispatch", "buildMessage", "personalize", b.ID, err)
		}
	}
	return utils.FillPlaceholders(template, b.Placeholders())
}

func (o *Orchestrator) publish(ctx context.Context, b models.Boleto) {
	if o.publisher == nil {
		return
	}
	out := Outcome{
		BoletoId: b.ID,
		Status:   b.Status,
		Error:    b.Error,
		SentAt:   time.Now().UTC(),
		Trigger:  utils.GetTriggerFromContext(ctx),
	}
	if err := o.publisher.Publish(ctx, out); err != nil {
		config.LogWarn(o.logger, "dispatch", "publish", "outcome event", b.ID, err)
	}
}

// Summary reports a bulk send.
type Summary struct {
	Selected int `json:"selected"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Rejected int `json:"rejected"`
}

// SendAll sends every pending or failed record with a dialable phone in the
// filtered view, strictly one after another. Only one run may be in flight.
func (o *Orchestrator) SendAll(ctx context.Context, filter models.Filter) (Summary, error) {
	lock, err := o.claim(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer o.unclaim(ctx, lock)

	ids := filter.Dispatchable(o.sess.Records())
	if len(ids) == 0 {
		return Summary{}, nil
	}
	return o.sendEach(ctx, ids, lock)
}

// Start claims the run and selects the records before returning, then sends
// in the background. The channel yields the summary after the claim is
// dropped. Nothing is started when no record qualifies.
func (o *Orchestrator) Start(ctx context.Context, filter models.Filter) (int, <-chan Summary, error) {
	lock, err := o.claim(ctx)
	if err != nil {
		return 0, nil, err
	}
	ids := filter.Dispatchable(o.sess.Records())
	if len(ids) == 0 {
		o.unclaim(ctx, lock)
		return 0, nil, nil
	}

	done := make(chan Summary, 1)
	go func() {
		sum, err := o.sendEach(ctx, ids, lock)
		if err != nil {
			config.LogError(o.logger, "dispatch", "Start", "send all", filter, err)
		}
		o.unclaim(ctx, lock)
		done <- sum
		close(done)
	}()
	return len(ids), done, nil
}

// claim marks the orchestrator busy and, on shared backends, takes the
// cross-process lock. The returned lock is nil for local-only stores.
func (o *Orchestrator) claim(ctx context.Context) (store.Lock, error) {
	if !o.busy.CompareAndSwap(false, true) {
		return nil, utils.ErrBusy
	}
	locker, ok := o.sess.Store().(store.Locker)
	if !ok {
		return nil, nil
	}
	lock, err := locker.Lock(ctx, lockKey, lockTTL)
	if err != nil {
		o.busy.Store(false)
		if errors.Is(err, store.ErrLockNotObtained) {
			return nil, utils.ErrBusy
		}
		return nil, err
	}
	return lock, nil
}

func (o *Orchestrator) unclaim(ctx context.Context, lock store.Lock) {
	if lock != nil {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			config.LogWarn(o.logger, "dispatch", "unclaim", "release lock", nil, err)
		}
	}
	o.busy.Store(false)
}

// sendEach extends the lock before every record so a long run never
// outlives its TTL. A lock lost to another worker stops the run.
func (o *Orchestrator) sendEach(ctx context.Context, ids []string, lock store.Lock) (Summary, error) {
	sum := Summary{Selected: len(ids)}
	for i, id := range ids {
		if lock != nil && i > 0 {
			err := lock.Refresh(ctx, lockTTL)
			if errors.Is(err, store.ErrLockNotObtained) {
				o.sess.AddLog(models.NewLogEntry(models.LogLevelError, "bulk dispatch stopped: lock lost"))
				return sum, fmt.Errorf("refresh dispatch lock: %w", err)
			}
			if err != nil {
				config.LogWarn(o.logger, "dispatch", "sendEach", "refresh lock", id, err)
			}
		}

		b, err := o.SendOne(ctx, id)
		switch {
		case err == nil:
			sum.Sent++
		case errors.Is(err, utils.ErrValidation), errors.Is(err, utils.ErrorRecordNotFound):
			sum.Rejected++
		default:
			if b.Status == models.BoletoStatusFailed {
				sum.Failed++
			}
		}
	}
	o.logger.WithFields(logrus.Fields{
		"selected": sum.Selected,
		"sent":     sum.Sent,
		"failed":   sum.Failed,
		"rejected": sum.Rejected,
	}).Info("bulk dispatch finished")
	return sum, nil
}
