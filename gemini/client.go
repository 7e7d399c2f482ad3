// Package gemini wraps the Gemini API for invoice extraction and message
// personalisation.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmdatafocus/boleto_notifier/models"
	"github.com/mmdatafocus/boleto_notifier/utils"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

var ErrNotConfigured = errors.New("generative AI credential not configured")

const (
	extractPrompt = "Leia este boleto bancário e extraia o nome do pagador, o valor do documento, " +
		"a data de vencimento no formato DD/MM/AAAA e a linha digitável (apenas números)."
	personaInstruction = "Você é um assistente de cobrança cordial e objetivo. Responda sempre em português do Brasil."
)

type Client struct {
	genai *genai.Client
	model string
}

type Options struct {
	HTTPClient *http.Client
	// BaseURL overrides the Gemini API endpoint.
	BaseURL string
}

// NewClient builds a client for model. An empty API key means the service is
// not configured.
func NewClient(ctx context.Context, apiKey, model string, opts Options) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &Client{genai: gc, model: model}, nil
}

// Extraction is the structured content read from an invoice image.
type Extraction struct {
	CustomerName string          `json:"customerName"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      string          `json:"dueDate"`
	Barcode      string          `json:"barcode"`
}

func extractionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"customerName": {Type: genai.TypeString},
			"amount":       {Type: genai.TypeNumber},
			"dueDate":      {Type: genai.TypeString},
			"barcode":      {Type: genai.TypeString},
		},
		Required: []string{"customerName", "amount", "dueDate"},
	}
}

// ExtractFromImage reads invoice fields from an image or PDF. Any response
// that does not decode to the schema, or lacks a customer name, is a parse
// error.
func (c *Client) ExtractFromImage(ctx context.Context, data []byte, mimeType string) (*Extraction, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			{Text: extractPrompt},
		},
	}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(),
	}
	text, err := c.generate(ctx, contents, config)
	if err != nil {
		return nil, err
	}
	return parseExtraction(text)
}

func parseExtraction(text string) (*Extraction, error) {
	var raw struct {
		CustomerName string          `json:"customerName"`
		Amount       json.RawMessage `json:"amount"`
		DueDate      string          `json:"dueDate"`
		Barcode      string          `json:"barcode"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil, utils.ParseError("extraction response: %v", err)
	}
	if strings.TrimSpace(raw.CustomerName) == "" {
		return nil, utils.ParseError("extraction response without customerName")
	}
	out := &Extraction{
		CustomerName: strings.TrimSpace(raw.CustomerName),
		Amount:       decimal.Zero,
		DueDate:      strings.TrimSpace(raw.DueDate),
		Barcode:      utils.DigitsOnly(raw.Barcode),
	}
	if amt := strings.Trim(string(raw.Amount), `" `); amt != "" && amt != "null" {
		d, err := utils.ParseDecimal(amt)
		if err != nil {
			return nil, utils.ParseError("extraction amount %q: %v", amt, err)
		}
		out.Amount = d
	}
	return out, nil
}

// Personalize asks the model to write the notification for b using template
// as a guide. An empty answer yields the template unchanged.
func (c *Client) Personalize(ctx context.Context, b models.Boleto, template string) (string, error) {
	link := b.BoletoURL
	if link == "" {
		link = "Anexo"
	}
	barcode := b.Barcode
	if barcode == "" {
		barcode = "Não informada"
	}
	prompt := fmt.Sprintf(
		"Escreva uma mensagem curta e profissional de WhatsApp para o cliente %s.\n"+
			"Valor: R$ %s\nVencimento: %s\nLink: %s\nLinha digitável: %s\n\n"+
			"Siga este modelo, substituindo {nome}, {valor}, {data}, {link} e {barcode}: %q\n"+
			"Coloque a linha digitável sozinha em uma linha para facilitar copiar e colar.",
		b.CustomerName, utils.FormatBRL(b.Amount), b.DueDate, link, barcode, template)

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: personaInstruction}}},
	}
	text, err := c.generate(ctx, contents, config)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return template, nil
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", utils.RemoteError("generate content: %v", err)
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		break
	}
	return sb.String(), nil
}
