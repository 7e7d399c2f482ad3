package models

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
)

func init() {
	// Persisted snapshots keep amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type BoletoStatus string

const (
	BoletoStatusPending    BoletoStatus = "pending"
	BoletoStatusProcessing BoletoStatus = "processing"
	BoletoStatusSent       BoletoStatus = "sent"
	BoletoStatusFailed     BoletoStatus = "failed"
)

func (s BoletoStatus) IsValid() bool {
	switch s {
	case BoletoStatusPending, BoletoStatusProcessing, BoletoStatusSent, BoletoStatusFailed:
		return true
	}
	return false
}

// CanDispatch reports whether a record in this state may enter processing.
func (s BoletoStatus) CanDispatch() bool {
	return s == BoletoStatusPending || s == BoletoStatusFailed
}

// Transition validates a status change against the dispatch workflow.
func (s BoletoStatus) Transition(to BoletoStatus) error {
	ok := false
	switch s {
	case BoletoStatusPending, BoletoStatusFailed:
		ok = to == BoletoStatusProcessing
	case BoletoStatusProcessing:
		ok = to == BoletoStatusSent || to == BoletoStatusFailed
	}
	if !ok {
		return fmt.Errorf("%w: invalid status transition %s -> %s", utils.ErrValidation, s, to)
	}
	return nil
}

// Boleto is one outstanding invoice tracked from import to dispatch.
type Boleto struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customerName"`
	Phone        string          `json:"phone"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      string          `json:"dueDate"`
	BoletoURL    string          `json:"boletoUrl"`
	Barcode      string          `json:"barcode,omitempty"`
	Status       BoletoStatus    `json:"status"`
	Error        string          `json:"error,omitempty"`
	Vendedor     string          `json:"vendedor,omitempty"`
	Category     string          `json:"category,omitempty"`
	ServiceId    string          `json:"serviceId,omitempty"`
	UserId       string          `json:"userId,omitempty"`
}

func (b Boleto) HasDialablePhone() bool {
	return utils.IsDialable(b.Phone)
}

// Placeholders returns the message template values for this record.
func (b Boleto) Placeholders() map[string]string {
	return map[string]string{
		"nome":    b.CustomerName,
		"valor":   utils.FormatBRL(b.Amount),
		"data":    b.DueDate,
		"link":    b.BoletoURL,
		"barcode": b.Barcode,
	}
}

// ChannelFor resolves the gateway channel: record override, then default.
func (b Boleto) ChannelFor(cfg GatewayConfig) string {
	if v := strings.TrimSpace(b.ServiceId); v != "" {
		return v
	}
	return strings.TrimSpace(cfg.AccountId)
}

// AgentFor resolves the responsible agent. Empty means the gateway's
// automatic queue.
func (b Boleto) AgentFor(cfg GatewayConfig) string {
	if v := strings.TrimSpace(b.UserId); v != "" {
		return v
	}
	return strings.TrimSpace(cfg.UserId)
}

// BoletoPatch carries operator edits. Nil fields are left untouched.
type BoletoPatch struct {
	Phone     *string `json:"phone"`
	ServiceId *string `json:"serviceId"`
	UserId    *string `json:"userId"`
}

func (p BoletoPatch) Apply(b Boleto) Boleto {
	if p.Phone != nil {
		b.Phone = utils.SanitizePhone(*p.Phone)
	}
	if p.ServiceId != nil {
		b.ServiceId = strings.TrimSpace(*p.ServiceId)
	}
	if p.UserId != nil {
		b.UserId = strings.TrimSpace(*p.UserId)
	}
	return b
}

func IndexOf(list []Boleto, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
