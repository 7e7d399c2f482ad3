// Package reconcile imports records from the ERP and from invoice images and
// merges them into the session without duplicates.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/gemini"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/omie"
	"github.com/mmdatafocus/boleto_notifier/session"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var importedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "boleto_import_records_total",
	Help: "Records seen by imports, labeled by source and result",
}, []string{"source", "result"})

type ERPSource interface {
	ListReceivables(ctx context.Context, cfg models.ERPConfig) (omie.Listing, error)
}

type Extractor interface {
	ExtractFromImage(ctx context.Context, data []byte, mimeType string) (*gemini.Extraction, error)
}

type Pipeline struct {
	sess   *session.Session
	erp    ERPSource
	vision Extractor
	logger *logrus.Logger
	now    func() time.Time
}

// New wires a pipeline. vision may be nil when no AI credential is set.
func New(sess *session.Session, erp ERPSource, vision Extractor) *Pipeline {
	return &Pipeline{
		sess:   sess,
		erp:    erp,
		vision: vision,
		logger: config.GetLogger(),
		now:    time.Now,
	}
}

type ImportResult struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Merge prepends the incoming records whose ids are not yet known, in
// incoming order. Existing records are never replaced.
func Merge(existing, incoming []models.Boleto) (merged []models.Boleto, added int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, b := range existing {
		seen[b.ID] = struct{}{}
	}
	fresh := make([]models.Boleto, 0, len(incoming))
	for _, b := range incoming {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		fresh = append(fresh, b)
	}
	merged = make([]models.Boleto, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	return merged, len(fresh)
}

func withRouting(b models.Boleto, gw models.GatewayConfig) models.Boleto {
	b.Status = models.BoletoStatusPending
	b.Error = ""
	if b.ServiceId == "" {
		b.ServiceId = gw.AccountId
	}
	if b.UserId == "" {
		b.UserId = gw.UserId
	}
	return b
}

// ImportFromERP fetches open receivables and merges the new ones.
func (p *Pipeline) ImportFromERP(ctx context.Context) (ImportResult, error) {
	p.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, "syncing with Omie ERP..."))

	erpCfg := p.sess.ERPConfig()
	listing, err := p.erp.ListReceivables(ctx, erpCfg)
	if err != nil {
		p.sess.AddLog(models.NewErrorLogEntry(utils.ErrorMessage(err), err))
		config.LogError(p.logger, "reconcile", "ImportFromERP", "list receivables", utils.GetTriggerFromContext(ctx), err)
		importedRecords.WithLabelValues("erp", "error").Inc()
		return ImportResult{}, err
	}

	gw := p.sess.GatewayConfig()
	incoming := make([]models.Boleto, 0, len(listing.Records))
	for _, b := range listing.Records {
		incoming = append(incoming, withRouting(b, gw))
	}

	var res ImportResult
	err = p.sess.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		merged, added := Merge(list, incoming)
		res.Added = added
		return merged, nil
	})
	if err != nil {
		p.sess.AddLog(models.NewErrorLogEntry("could not save imported invoices", err))
		return ImportResult{}, err
	}
	res.Duplicates = len(incoming) - res.Added
	res.Skipped = listing.Skipped

	importedRecords.WithLabelValues("erp", "added").Add(float64(res.Added))
	importedRecords.WithLabelValues("erp", "duplicate").Add(float64(res.Duplicates))
	importedRecords.WithLabelValues("erp", "skipped").Add(float64(res.Skipped))

	switch {
	case res.Added > 0 && res.Skipped > 0:
		p.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, fmt.Sprintf("%d new invoices loaded (%d skipped: customer lookup failed)", res.Added, res.Skipped)))
	case res.Added > 0:
		p.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, fmt.Sprintf("%d new invoices loaded", res.Added)))
	case res.Skipped > 0:
		p.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, fmt.Sprintf("Omie receivables already up to date (%d skipped: customer lookup failed)", res.Skipped)))
	default:
		p.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, "Omie receivables already up to date"))
	}

	erpCfg = p.sess.ERPConfig()
	erpCfg.LastSync = p.now().Format(time.RFC3339)
	if err := p.sess.SetERPConfig(ctx, erpCfg); err != nil {
		config.LogError(p.logger, "reconcile", "ImportFromERP", "save last sync", nil, err)
	}
	return res, nil
}

var ErrVisionUnavailable = errors.New("invoice reading is not configured")

// ImportFromImage extracts an invoice from an uploaded file and prepends it as
// a new pending record with an empty phone.
func (p *Pipeline) ImportFromImage(ctx context.Context, data []byte, mimeType string) (models.Boleto, error) {
	if p.vision == nil {
		p.sess.AddLog(models.NewErrorLogEntry("AI could not read the invoice: "+ErrVisionUnavailable.Error(), nil))
		return models.Boleto{}, ErrVisionUnavailable
	}
	p.sess.AddLog(models.NewLogEntry(models.LogLevelInfo, "reading invoice..."))

	data, mimeType = gemini.PrepareImage(data, mimeType)
	ext, err := p.vision.ExtractFromImage(ctx, data, mimeType)
	if err == nil && (ext == nil || ext.CustomerName == "") {
		err = utils.ParseError("extraction without customer name")
	}
	if err != nil {
		p.sess.AddLog(models.NewErrorLogEntry("AI could not read the invoice", err))
		config.LogWarn(p.logger, "reconcile", "ImportFromImage", "extract", mimeType, err)
		importedRecords.WithLabelValues("image", "error").Inc()
		return models.Boleto{}, err
	}

	b := withRouting(models.Boleto{
		ID:           "img-" + ulid.Make().String(),
		CustomerName: ext.CustomerName,
		Amount:       ext.Amount,
		DueDate:      ext.DueDate,
		Barcode:      ext.Barcode,
	}, p.sess.GatewayConfig())

	err = p.sess.Update(ctx, func(list []models.Boleto) ([]models.Boleto, error) {
		merged, _ := Merge(list, []models.Boleto{b})
		return merged, nil
	})
	if err != nil {
		p.sess.AddLog(models.NewErrorLogEntry("could not save extracted invoice", err))
		return models.Boleto{}, err
	}
	importedRecords.WithLabelValues("image", "added").Inc()
	p.sess.AddLog(models.NewLogEntry(models.LogLevelSuccess, fmt.Sprintf("read %s - R$ %s", b.CustomerName, utils.FormatBRL(b.Amount))))
	return b, nil
}
