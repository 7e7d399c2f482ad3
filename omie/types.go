package omie

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
)

// flexString accepts a JSON string or number; Omie is not consistent about
// which one it sends for codes and phone parts.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// MarshalJSON writes numeric codes back as JSON numbers.
func (f flexString) MarshalJSON() ([]byte, error) {
	s := string(f)
	if isDigits(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func isDigits(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type listReceivablesParam struct {
	Pagina             int    `json:"pagina"`
	RegistrosPorPagina int    `json:"registros_por_pagina"`
	ApenasImportadoAPI string `json:"apenas_importado_api"`
	FiltrarPorStatus   string `json:"filtrar_por_status"`
	OrdenarPor         string `json:"ordenar_por"`
}

type listReceivablesResponse struct {
	Pagina           int                `json:"pagina"`
	TotalDePaginas   int                `json:"total_de_paginas"`
	Registros        int                `json:"registros"`
	TotalDeRegistros int                `json:"total_de_registros"`
	Contas           []receivableRecord `json:"conta_receber_cadastro"`
}

type boletoInfo struct {
	LinkBoleto string `json:"cLinkBoleto"`
	CodBarra   string `json:"cCodBarra"`
}

type receivableRecord struct {
	CodigoLancamento        flexString   `json:"codigo_lancamento"`
	CodigoClienteFornecedor flexString   `json:"codigo_cliente_fornecedor"`
	NomeCliente             string       `json:"nome_cliente"`
	ValorLiquido            *json.Number `json:"valor_liquido"`
	ValorDocumento          *json.Number `json:"valor_documento"`
	DataVencimento          string       `json:"data_vencimento"`
	DescricaoCategoria      string       `json:"descricao_categoria"`
	VendedorNome            string       `json:"vendedor_nome"`
	Boletos                 []boletoInfo `json:"boletos"`
}

type consultarClienteParam struct {
	CodigoClienteOmie flexString `json:"codigo_cliente_omie"`
}

type customerRecord struct {
	NomeFantasia    string     `json:"nome_fantasia"`
	RazaoSocial     string     `json:"razao_social"`
	Telefone1DDD    flexString `json:"telefone1_ddd"`
	Telefone1Numero flexString `json:"telefone1_numero"`
	CelularDDD      flexString `json:"celular_ddd"`
	CelularNumero   flexString `json:"celular_numero"`
}

// Phone resolves the contact number from the landline pair, then the mobile
// pair. A pair is used only when both area code and number are present.
func (c customerRecord) Phone() string {
	pairs := [][2]flexString{
		{c.Telefone1DDD, c.Telefone1Numero},
		{c.CelularDDD, c.CelularNumero},
	}
	for _, p := range pairs {
		ddd := utils.SanitizePhone(string(p[0]))
		num := utils.SanitizePhone(string(p[1]))
		if ddd != "" && num != "" {
			return utils.CountryDialPrefix + ddd + num
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func numberToDecimal(vals ...*json.Number) decimal.Decimal {
	for _, v := range vals {
		if v == nil || *v == "" {
			continue
		}
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// normalize maps one receivable and its customer onto a pending record.
// codigo_lancamento is required; everything else has a fallback.
func normalize(item receivableRecord, cust customerRecord) (models.Boleto, bool) {
	code := strings.TrimSpace(string(item.CodigoLancamento))
	if code == "" {
		return models.Boleto{}, false
	}
	b := models.Boleto{
		ID:           "omie-" + code,
		CustomerName: firstNonEmpty(item.NomeCliente, cust.NomeFantasia, cust.RazaoSocial, "Cliente"),
		Phone:        cust.Phone(),
		Amount:       numberToDecimal(item.ValorLiquido, item.ValorDocumento),
		DueDate:      strings.TrimSpace(item.DataVencimento),
		Status:       models.BoletoStatusPending,
		Category:     strings.TrimSpace(item.DescricaoCategoria),
		Vendedor:     strings.TrimSpace(item.VendedorNome),
	}
	if len(item.Boletos) > 0 {
		b.BoletoURL = strings.TrimSpace(item.Boletos[0].LinkBoleto)
		b.Barcode = strings.TrimSpace(item.Boletos[0].CodBarra)
	}
	return b, true
}
