package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
)

const (
	StoreDriverBadger   = "badger"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	DefaultOmieBaseURL = "https://app.omie.com.br/api/v1"
	DefaultGeminiModel = "gemini-3-flash-preview"
)

// Settings is the process configuration read from the environment.
type Settings struct {
	Port           string `validate:"required,numeric"`
	Production     bool
	AllowedOrigins []string

	StoreDriver  string `validate:"oneof=badger redis postgres memory"`
	StorePath    string `validate:"required_if=StoreDriver badger"`
	RedisAddress string `validate:"required_if=StoreDriver redis"`
	DatabaseURL  string `validate:"required_if=StoreDriver postgres"`

	StaticDir   string
	OmieBaseURL string `validate:"required,url"`

	GeminiAPIKey string
	GeminiModel  string `validate:"required"`

	PubSubProjectID string
	DispatchTopic   string
	CreateTopic     bool
	EnablePushSync  bool

	ERPSimulationDelay     time.Duration `validate:"gte=0"`
	GatewaySimulationDelay time.Duration `validate:"gte=0"`
}

var validate = validator.New()

// LoadSettings reads the environment (after .env has been loaded) and
// validates the result.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		Port:            EnvStringDefault("PORT", "8080"),
		Production:      strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production"),
		AllowedOrigins:  SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		StoreDriver:     strings.ToLower(EnvStringDefault("STORE_DRIVER", StoreDriverBadger)),
		StorePath:       EnvStringDefault("STORE_PATH", defaultStorePath()),
		RedisAddress:    strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StaticDir:       EnvStringDefault("STATIC_DIR", "dist"),
		OmieBaseURL:     strings.TrimRight(EnvStringDefault("OMIE_BASE_URL", DefaultOmieBaseURL), "/"),
		GeminiAPIKey:    EnvStringDefault("GEMINI_API_KEY", strings.TrimSpace(os.Getenv("API_KEY"))),
		GeminiModel:     EnvStringDefault("GEMINI_MODEL", DefaultGeminiModel),
		PubSubProjectID: getPubSubProjectID(),
		DispatchTopic:   strings.TrimSpace(os.Getenv("DISPATCH_TOPIC")),
		CreateTopic:     EnvBoolDefault("DISPATCH_CREATE_TOPIC", false),
		EnablePushSync:  EnvBoolDefault("ENABLE_ERP_PUBSUB_PUSH_ENDPOINT", true),

		ERPSimulationDelay:     EnvDurationDefault("OMIE_SIMULATION_DELAY", time.Second),
		GatewaySimulationDelay: EnvDurationDefault("DIGISAC_SIMULATION_DELAY", 500*time.Millisecond),
	}
	if err := validate.Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func defaultStorePath() string {
	return filepath.Join(xdg.DataHome, "boleto-notifier", "store")
}
