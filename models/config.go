package models

const DefaultMessageTemplate = "Olá {nome}, seu boleto de R$ {valor} vence em {data}. Segue o link para pagamento: {link}\n\nCód. Barras: {barcode}"

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GatewayConfig configures the messaging gateway.
type GatewayConfig struct {
	ApiUrl            string    `json:"apiUrl"`
	ApiToken          string    `json:"apiToken"`
	AccountId         string    `json:"accountId"`
	UserId            string    `json:"userId,omitempty"`
	MessageTemplate   string    `json:"messageTemplate"`
	TestMode          bool      `json:"testMode,omitempty"`
	AvailableServices []Channel `json:"availableServices,omitempty"`
	AvailableUsers    []Agent   `json:"availableUsers,omitempty"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{MessageTemplate: DefaultMessageTemplate}
}

// ERPConfig configures the accounts receivable source.
type ERPConfig struct {
	AppKey    string `json:"appKey"`
	AppSecret string `json:"appSecret"`
	LastSync  string `json:"lastSync,omitempty"`
	TestMode  bool   `json:"testMode,omitempty"`
}

// Backup is the export/restore document for both configurations.
type Backup struct {
	Config     *GatewayConfig `json:"config"`
	OmieConfig *ERPConfig     `json:"omieConfig"`
}
