package config

import (
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the YonBIP endpoints the service talks to. Every path can be
// overridden through the environment when the tenant routes differ.
const (
	DefaultTokenURL   = "https://c2.yonyoucloud.com/iuap-api-auth"
	DefaultGatewayURL = "https://c2.yonyoucloud.com/iuap-api-gateway"

	DefaultTokenPath             = "/open-auth/selfAppAuth/base/v1/getAccessToken"
	DefaultFollowupListPath      = "/yonbip/crm/followup/list"
	DefaultTaskListPath          = "/yonbip/crm/task/list"
	DefaultOpportunityListPath   = "/yonbip/crm/oppt/bill/list"
	DefaultOpportunityDetailPath = "/yonbip/crm/oppt/getbyid"
	DefaultCustomerDetailPath    = "/yonbip/crm/customer/getbyid"
	DefaultAddressListPath       = "/yonbip/digitalModel/merchant/listaddressbycodelist"

	DefaultPageSize     = 20
	DefaultTaskPageSize = 50

	DefaultSessionTTL = 4 * time.Hour
)

// Config holds application configuration.
type Config struct {
	// Server configuration
	Port      string
	DebugMode bool
	TLS       TLSConfig

	// Browser access
	AllowedOrigins []string

	// Password gate. An empty GatePassword disables the gate entirely.
	GatePassword  string
	SessionSecret string
	SessionTTL    time.Duration

	// Upstream application credentials (required)
	AppKey    string
	AppSecret string
	TenantID  string

	// Upstream endpoints
	TokenURL   string
	GatewayURL string

	TokenPath             string
	FollowupListPath      string
	TaskListPath          string
	OpportunityListPath   string
	OpportunityDetailPath string
	CustomerDetailPath    string
	AddressListPath       string

	// Lookup behavior
	PageSize                 int
	TaskPageSize             int
	LookupRulesPath          string
	OpportunityDetailURLTmpl string
}

// Load loads configuration from a .env file (when present), environment
// variables, and command-line flags, in increasing order of precedence.
func Load() *Config {
	// Missing .env is the normal case in deployed environments.
	_ = godotenv.Load()

	c := &Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		DebugMode: boolEnv("DEBUG_MODE"),
		TLS:       loadTLSConfig(),

		AllowedOrigins: splitAndTrim(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),

		GatePassword:  getEnvOrDefault("GATE_PASSWORD", ""),
		SessionSecret: getEnvOrDefault("SESSION_SECRET", ""),
		SessionTTL:    durationEnv("SESSION_TTL", DefaultSessionTTL),

		AppKey:    getEnvOrDefault("APP_KEY", ""),
		AppSecret: getEnvOrDefault("APP_SECRET", ""),
		TenantID:  getEnvOrDefault("TENANT_ID", ""),

		TokenURL:   getEnvOrDefault("TOKEN_URL", DefaultTokenURL),
		GatewayURL: getEnvOrDefault("GATEWAY_URL", DefaultGatewayURL),

		TokenPath:             getEnvOrDefault("TOKEN_PATH", DefaultTokenPath),
		FollowupListPath:      getEnvOrDefault("FOLLOWUP_LIST_PATH", DefaultFollowupListPath),
		TaskListPath:          getEnvOrDefault("TASK_LIST_PATH", DefaultTaskListPath),
		OpportunityListPath:   getEnvOrDefault("OPPORTUNITY_LIST_PATH", DefaultOpportunityListPath),
		OpportunityDetailPath: getEnvOrDefault("OPPORTUNITY_DETAIL_PATH", DefaultOpportunityDetailPath),
		CustomerDetailPath:    getEnvOrDefault("CUSTOMER_DETAIL_PATH", DefaultCustomerDetailPath),
		AddressListPath:       getEnvOrDefault("ADDRESS_LIST_PATH", DefaultAddressListPath),

		PageSize:                 intEnv("DEFAULT_PAGE_SIZE", DefaultPageSize),
		TaskPageSize:             intEnv("DEFAULT_TASK_PAGE_SIZE", DefaultTaskPageSize),
		LookupRulesPath:          getEnvOrDefault("LOOKUP_RULES_PATH", ""),
		OpportunityDetailURLTmpl: getEnvOrDefault("OPPORTUNITY_DETAIL_URL_TEMPLATE", ""),
	}

	c.bindFlags(flag.CommandLine)

	return c
}

// Validate checks that the configuration is usable. Credential errors are
// surfaced at startup rather than on the first lookup.
func (c *Config) Validate() error {
	if c.AppKey == "" || c.AppSecret == "" || c.TenantID == "" {
		return errors.New("APP_KEY, APP_SECRET and TENANT_ID are required")
	}
	if c.GatePassword != "" && c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required when GATE_PASSWORD is set")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return c.TLS.validate()
}

// GateEnabled reports whether the password gate protects the lookup API.
func (c *Config) GateEnabled() bool {
	return c.GatePassword != ""
}

// bindFlags will parse the given flagset and bind values to selected config options.
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.BoolVar(&c.DebugMode, "debug", c.DebugMode, "Enable debug logging and CORS relaxation")
	fs.StringVar(&c.GatewayURL, "gateway-url", c.GatewayURL, "Base URL of the CRM gateway")
	fs.StringVar(&c.TokenURL, "token-url", c.TokenURL, "Base URL of the token-exchange endpoint")
	fs.StringVar(&c.LookupRulesPath, "lookup-rules", c.LookupRulesPath, "Path to a YAML file overriding the built-in lookup rules")
	c.TLS.bindFlags(fs)
}

// getEnvOrDefault gets environment variable or returns default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

func intEnv(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n := 0
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return defaultValue
		}
		n = n*10 + int(ch-'0')
	}
	if n == 0 {
		return defaultValue
	}
	return n
}

func durationEnv(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
