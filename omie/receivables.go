package omie

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/config"
	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	receivablesPath = "/financas/contareceber/"
	customersPath   = "/geral/clientes/"
)

// Listing is the outcome of one receivables fetch.
type Listing struct {
	Records []models.Boleto
	// Skipped counts items dropped because they were malformed or their
	// customer lookup failed.
	Skipped int
	Pages   int
}

// SimulatedBoleto is returned in simulation mode.
func SimulatedBoleto() models.Boleto {
	return models.Boleto{
		ID:           "omie-test-1",
		CustomerName: "CLIENTE TESTE SA",
		Phone:        "5511999998888",
		Amount:       decimal.RequireFromString("150.00"),
		DueDate:      "10/02/2026",
		Barcode:      "00190500954014481606906809350314337370000000100",
		Status:       models.BoletoStatusPending,
		Category:     "Vendas",
		Vendedor:     "VENDEDOR TESTE",
	}
}

// ListReceivables pages through open receivables ordered by due date and
// resolves each customer's phone. Customer lookups run one at a time in
// source order; a failed lookup skips that item only.
func (c *Client) ListReceivables(ctx context.Context, cfg models.ERPConfig) (Listing, error) {
	if cfg.TestMode {
		if err := sleepCtx(ctx, c.simDelay); err != nil {
			return Listing{}, err
		}
		return Listing{Records: []models.Boleto{SimulatedBoleto()}}, nil
	}
	if strings.TrimSpace(cfg.AppKey) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return Listing{}, utils.ValidationError("configure the Omie app key and secret")
	}

	logger := config.GetLogger()
	var out Listing
	for page := 1; page <= maxPages; page++ {
		var resp listReceivablesResponse
		err := c.call(ctx, cfg, receivablesPath, "ListarContasReceber", listReceivablesParam{
			Pagina:             page,
			RegistrosPorPagina: pageSize,
			ApenasImportadoAPI: "N",
			FiltrarPorStatus:   "EMABERTO",
			OrdenarPor:         "DATA_VENCIMENTO",
		}, &resp)
		if err != nil {
			return Listing{}, err
		}
		out.Pages = page

		for _, item := range resp.Contas {
			cust, err := c.lookupCustomer(ctx, cfg, item.CodigoClienteFornecedor)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return Listing{}, err
				}
				out.Skipped++
				config.LogWarn(logger, "omie", "ListReceivables", "customer lookup failed", string(item.CodigoLancamento), err)
				continue
			}
			b, ok := normalize(item, cust)
			if !ok {
				out.Skipped++
				logger.WithFields(logrus.Fields{"module": "omie", "customer": string(item.CodigoClienteFornecedor)}).Warn("receivable without codigo_lancamento")
				continue
			}
			out.Records = append(out.Records, b)
		}

		if resp.TotalDePaginas <= page || len(resp.Contas) == 0 {
			break
		}
	}
	return out, nil
}

func (c *Client) lookupCustomer(ctx context.Context, cfg models.ERPConfig, code flexString) (customerRecord, error) {
	var cust customerRecord
	err := c.call(ctx, cfg, customersPath, "ConsultarCliente", consultarClienteParam{CodigoClienteOmie: code}, &cust)
	return cust, err
}
