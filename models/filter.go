package models

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
)

type FilterView string

const (
	FilterViewAll     FilterView = "all"
	FilterViewPending FilterView = "pending"
	FilterViewSent    FilterView = "sent"
)

// Filter is the operator's current view of the collection.
type Filter struct {
	View   FilterView `form:"view" json:"view"`
	Search string     `form:"q" json:"q"`
}

func (f Filter) Matches(b Boleto) bool {
	switch f.View {
	case FilterViewPending:
		if b.Status == BoletoStatusSent {
			return false
		}
	case FilterViewSent:
		if b.Status != BoletoStatusSent {
			return false
		}
	}
	term := strings.TrimSpace(f.Search)
	if term == "" {
		return true
	}
	return utils.ContainsFold(b.CustomerName, term) || utils.ContainsFold(b.Vendedor, term)
}

func (f Filter) Apply(list []Boleto) []Boleto {
	out := make([]Boleto, 0, len(list))
	for _, b := range list {
		if f.Matches(b) {
			out = append(out, b)
		}
	}
	return out
}

// Dispatchable returns the ids of records in the filtered view that a bulk
// send should process, in collection order.
func (f Filter) Dispatchable(list []Boleto) []string {
	ids := make([]string, 0)
	for _, b := range list {
		if f.Matches(b) && b.Status.CanDispatch() && b.HasDialablePhone() {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

type DashboardStats struct {
	Total       int             `json:"total"`
	Sent        int             `json:"sent"`
	Failed      int             `json:"failed"`
	Pending     int             `json:"pending"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Recent      []Boleto        `json:"recent"`
}

const recentCount = 5

// Summarize computes the dashboard counters. Pending includes records
// currently processing; Recent holds the records with the greatest ids.
func Summarize(list []Boleto) DashboardStats {
	stats := DashboardStats{Total: len(list), TotalAmount: decimal.Zero}
	for _, b := range list {
		switch b.Status {
		case BoletoStatusSent:
			stats.Sent++
		case BoletoStatusFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
		stats.TotalAmount = stats.TotalAmount.Add(b.Amount)
	}

	recent := make([]Boleto, len(list))
	copy(recent, list)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].ID > recent[j].ID })
	if len(recent) > recentCount {
		recent = recent[:recentCount]
	}
	stats.Recent = recent
	return stats
}
