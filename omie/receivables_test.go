package omie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOmie struct {
	pages [][]map[string]any
	// totalPages, when set, is reported instead of len(pages) and every
	// page carries one generated receivable.
	totalPages int
	customers map[string]map[string]any

	mu    sync.Mutex
	calls []string
}

func (f *fakeOmie) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeOmie) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Call      string            `json:"call"`
			AppKey    string            `json:"app_key"`
			AppSecret string            `json:"app_secret"`
			Param     []json.RawMessage `json:"param"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "key", req.AppKey)
		assert.Equal(t, "secret", req.AppSecret)
		require.Len(t, req.Param, 1)
		f.mu.Lock()
		f.calls = append(f.calls, req.Call)
		f.mu.Unlock()

		switch r.URL.Path {
		case receivablesPath:
			var p listReceivablesParam
			require.NoError(t, json.Unmarshal(req.Param[0], &p))
			assert.Equal(t, "EMABERTO", p.FiltrarPorStatus)
			assert.Equal(t, "DATA_VENCIMENTO", p.OrdenarPor)
			assert.Equal(t, 100, p.RegistrosPorPagina)
			total := len(f.pages)
			var rows []map[string]any
			if f.totalPages > 0 {
				total = f.totalPages
				rows = []map[string]any{{"codigo_lancamento": p.Pagina, "codigo_cliente_fornecedor": 10, "nome_cliente": "ACME", "valor_liquido": 1}}
			} else {
				rows = f.pages[p.Pagina-1]
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"pagina":                 p.Pagina,
				"total_de_paginas":       total,
				"conta_receber_cadastro": rows,
			})
		case customersPath:
			var p map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(req.Param[0], &p))
			code := string(p["codigo_cliente_omie"])
			cust, ok := f.customers[code]
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"faultstring":"Cliente não cadastrado","faultcode":"SOAP-ENV:Client-103"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(cust)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestListReceivablesStopsAtPageCeiling(t *testing.T) {
	fake := &fakeOmie{
		totalPages: 50,
		customers: map[string]map[string]any{
			"10": {"celular_ddd": "11", "celular_numero": "98888-7777"},
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	listing, err := NewClient(srv.URL, Options{}).ListReceivables(context.Background(), models.ERPConfig{AppKey: "key", AppSecret: "secret"})
	require.NoError(t, err)

	assert.Equal(t, maxPages, listing.Pages)
	assert.Equal(t, 20, listing.Pages)
	assert.Len(t, listing.Records, 20)
	listCalls := 0
	for _, call := range fake.Calls() {
		if call == "ListarContasReceber" {
			listCalls++
		}
	}
	assert.Equal(t, 20, listCalls)
}

func TestListReceivablesPagesAndNormalizes(t *testing.T) {
	fake := &fakeOmie{
		pages: [][]map[string]any{
			{
				{"codigo_lancamento": 1, "codigo_cliente_fornecedor": 10, "nome_cliente": "ACME", "valor_liquido": 150.5, "data_vencimento": "10/02/2026",
					"descricao_categoria": "Vendas", "vendedor_nome": "Ana",
					"boletos": []map[string]any{{"cLinkBoleto": "https://b/1", "cCodBarra": "001"}}},
				{"codigo_lancamento": 2, "codigo_cliente_fornecedor": 99, "valor_liquido": 10},
			},
			{
				{"codigo_lancamento": "3", "codigo_cliente_fornecedor": 11, "valor_documento": "42.10", "data_vencimento": "11/02/2026"},
			},
		},
		customers: map[string]map[string]any{
			"10": {"telefone1_ddd": "11", "telefone1_numero": "3333-4444", "celular_ddd": "21", "celular_numero": "99999-0000"},
			"11": {"nome_fantasia": "Loja X", "telefone1_ddd": "", "telefone1_numero": "5555", "celular_ddd": 21, "celular_numero": "98888-7777"},
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	c := NewClient(srv.URL, Options{})
	listing, err := c.ListReceivables(context.Background(), models.ERPConfig{AppKey: "key", AppSecret: "secret"})
	require.NoError(t, err)

	assert.Equal(t, 2, listing.Pages)
	assert.Equal(t, 1, listing.Skipped)
	require.Len(t, listing.Records, 2)

	first := listing.Records[0]
	assert.Equal(t, "omie-1", first.ID)
	assert.Equal(t, "ACME", first.CustomerName)
	assert.Equal(t, "551133334444", first.Phone)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, "https://b/1", first.BoletoURL)
	assert.Equal(t, "001", first.Barcode)
	assert.Equal(t, "Vendas", first.Category)
	assert.Equal(t, "Ana", first.Vendedor)
	assert.Equal(t, models.BoletoStatusPending, first.Status)

	second := listing.Records[1]
	assert.Equal(t, "omie-3", second.ID)
	assert.Equal(t, "Loja X", second.CustomerName)
	assert.Equal(t, "5521988887777", second.Phone)
	assert.True(t, second.Amount.Equal(decimal.RequireFromString("42.10")))
	assert.Empty(t, second.BoletoURL)

	assert.Equal(t, []string{"ListarContasReceber", "ConsultarCliente", "ConsultarCliente", "ListarContasReceber", "ConsultarCliente"}, fake.Calls())
}

func TestCustomerPhoneRequiresBothParts(t *testing.T) {
	assert.Equal(t, "", customerRecord{Telefone1DDD: "11"}.Phone())
	assert.Equal(t, "", customerRecord{Telefone1Numero: "1234", CelularDDD: "21"}.Phone())
	assert.Equal(t, "551112345678", customerRecord{Telefone1DDD: "(11)", Telefone1Numero: "1234-5678"}.Phone())
}

func TestListReceivablesRemoteFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"faultstring":"ERROR: Chave de acesso inválida"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Options{}).ListReceivables(context.Background(), models.ERPConfig{AppKey: "k", AppSecret: "s"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrRemote))
	assert.Equal(t, "ERROR: Chave de acesso inválida", utils.ErrorMessage(err))
}

func TestListReceivablesStatusWithoutFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, Options{}).ListReceivables(context.Background(), models.ERPConfig{AppKey: "k", AppSecret: "s"})
	require.Error(t, err)
	assert.Equal(t, "omie error: 403", utils.ErrorMessage(err))
}

func TestListReceivablesConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, Options{}).ListReceivables(context.Background(), models.ERPConfig{AppKey: "k", AppSecret: "s"})
	assert.True(t, errors.Is(err, utils.ErrConnectivity))
}

func TestListReceivablesRequiresKeys(t *testing.T) {
	_, err := NewClient("http://unused", Options{}).ListReceivables(context.Background(), models.ERPConfig{AppKey: "k"})
	assert.True(t, errors.Is(err, utils.ErrValidation))
}

func TestListReceivablesSimulation(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { atomic.AddInt32(&hits, 1) }))
	defer srv.Close()

	c := NewClient(srv.URL, Options{SimulationDelay: 10 * time.Millisecond})
	start := time.Now()
	listing, err := c.ListReceivables(context.Background(), models.ERPConfig{TestMode: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	require.Len(t, listing.Records, 1)
	assert.Equal(t, "omie-test-1", listing.Records[0].ID)
	assert.Equal(t, "CLIENTE TESTE SA", listing.Records[0].CustomerName)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestFlexStringMarshal(t *testing.T) {
	out, err := json.Marshal(consultarClienteParam{CodigoClienteOmie: "2485994"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"codigo_cliente_omie":2485994}`, string(out))

	out, err = json.Marshal(consultarClienteParam{CodigoClienteOmie: "ABC"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"codigo_cliente_omie":"ABC"}`, string(out))
}
