package config

import "time"

// Config represents the complete commitgate configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	VCS       VCSConfig       `yaml:"vcs"`
	Directory DirectoryConfig `yaml:"directory"`
	Signature SignatureConfig `yaml:"signature"`
	HTTP      HTTPConfig      `yaml:"http"`
	Retry     RetryConfig     `yaml:"retry"`
	Secrets   SecretsConfig   `yaml:"secrets"`
	Ops       OpsConfig       `yaml:"ops,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// InvocationBudget is the hard wall-clock limit for one delivery.
	InvocationBudget time.Duration `yaml:"invocation_budget"`

	// ReportGrace bounds the failure report sent after the budget expires.
	ReportGrace time.Duration `yaml:"report_grace"`
}

// LedgerConfig defines verdict ledger storage settings.
type LedgerConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// WebhookConfig defines the inbound webhook endpoint.
type WebhookConfig struct {
	Path            string `yaml:"path"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size"`
	SecretRef       string `yaml:"secret_ref"`
}

// VCSConfig defines how the VCS host is read from and reported to.
type VCSConfig struct {
	BaseURL       string          `yaml:"base_url"`
	TokenRef      string          `yaml:"token_ref"`
	ReportMode    string          `yaml:"report_mode"` // "status" or "check_run"
	StatusContext string          `yaml:"status_context"`
	TargetURL     string          `yaml:"target_url,omitempty"`
	Fields        CommitFieldsMap `yaml:"fields"`
}

// CommitFieldsMap names the dotted JSON paths read from the commit payload.
// The signature location is a deployment convention, not a VCS standard.
type CommitFieldsMap struct {
	AuthorEmail   string `yaml:"author_email"`
	Signature     string `yaml:"signature"`
	SignedContent string `yaml:"signed_content"`
}

// DirectoryConfig defines the device-management directory lookup.
type DirectoryConfig struct {
	BaseURL     string      `yaml:"base_url"`
	TokenRef    string      `yaml:"token_ref"`
	LookupPath  string      `yaml:"lookup_path"`
	FilterParam string      `yaml:"filter_param"`
	Cache       CacheConfig `yaml:"cache"`
}

// CacheConfig defines the device record cache.
type CacheConfig struct {
	Backend   string        `yaml:"backend"` // "memory" or "redis"
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr,omitempty"`
	RedisDB   int           `yaml:"redis_db,omitempty"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
}

// SignatureConfig selects the commit signing convention in use.
type SignatureConfig struct {
	Scheme   string `yaml:"scheme"`
	Encoding string `yaml:"encoding"`
}

// HTTPConfig defines outbound call settings.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig defines retry behavior for transient upstream failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// SecretsConfig defines where named secrets are read from.
type SecretsConfig struct {
	EnvFile string `yaml:"env_file,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// OpsConfig defines the operator query endpoint. Disabled when TokenRef is empty.
type OpsConfig struct {
	TokenRef string `yaml:"token_ref,omitempty"`
}

// Report modes.
const (
	ReportModeStatus   = "status"
	ReportModeCheckRun = "check_run"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:             "commitgate",
			Listen:           "127.0.0.1:8081",
			LogLevel:         "info",
			LogFormat:        "json",
			InvocationBudget: 25 * time.Second,
			ReportGrace:      5 * time.Second,
		},
		Ledger: LedgerConfig{
			Path:      "./data/ledger.db",
			Retention: 90 * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			Path:            "/webhook/github",
			SignatureHeader: "X-Hub-Signature-256",
			MaxBodySize:     "1MB",
			SecretRef:       "github_webhook_secret",
		},
		VCS: VCSConfig{
			BaseURL:       "https://api.github.com",
			TokenRef:      "github_token",
			ReportMode:    ReportModeStatus,
			StatusContext: "commit-integrity-verification",
			Fields: CommitFieldsMap{
				AuthorEmail:   "commit.author.email",
				Signature:     "commit.verification.signature",
				SignedContent: "commit.verification.payload",
			},
		},
		Directory: DirectoryConfig{
			TokenRef:    "directory_token",
			LookupPath:  "/api/v1/devices",
			FilterParam: "filter",
			Cache: CacheConfig{
				Backend:   CacheBackendMemory,
				TTL:       5 * time.Minute,
				KeyPrefix: "commitgate:device:",
			},
		},
		Signature: SignatureConfig{
			Scheme:   "cms",
			Encoding: "pem",
		},
		HTTP: HTTPConfig{
			Timeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			BackoffBase: 500 * time.Millisecond,
			BackoffMax:  5 * time.Second,
		},
		Secrets: SecretsConfig{
			EnvFile: ".env",
		},
	}
}
