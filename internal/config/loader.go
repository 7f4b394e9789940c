package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var validSchemes = map[string]bool{
	"cms":                 true,
	"rsa-pkcs1v15-sha256": true,
	"rsa-pss-sha256":      true,
	"ecdsa-sha256":        true,
	"ed25519":             true,
}

var validEncodings = map[string]bool{"pem": true, "base64": true, "hex": true}

// Load reads, interpolates, defaults, integrity-checks and validates the
// configuration at configPath. A directory resolves to its config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigFile(configPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath

	// Relative ledger and secret paths are anchored at the config directory.
	baseDir := filepath.Dir(absPath)
	cfg.Ledger.Path = anchorPath(baseDir, cfg.Ledger.Path)
	if cfg.Secrets.EnvFile != "" {
		cfg.Secrets.EnvFile = anchorPath(baseDir, cfg.Secrets.EnvFile)
	}
	if cfg.Secrets.Dir != "" {
		cfg.Secrets.Dir = anchorPath(baseDir, cfg.Secrets.Dir)
	}

	return cfg, nil
}

// Parse decodes YAML bytes, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $COMMITGATE_CONFIG, ~/.config/commitgate, /etc/commitgate, ./config.yaml
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv("COMMITGATE_CONFIG"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "commitgate", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	systemConfig := "/etc/commitgate/config.yaml"
	if _, err := os.Stat(systemConfig); err == nil {
		return systemConfig, nil
	}

	if _, err := os.Stat("./config.yaml"); err == nil {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $COMMITGATE_CONFIG, ~/.config/commitgate, /etc/commitgate, ./config.yaml)")
}

func resolveConfigFile(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// verifyConfigHash checks the config file against .checksums when present.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		// No manifest: integrity checking is opt-in via `config lock`.
		return nil
	}

	basename := filepath.Base(path)
	expected, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: commitgate config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expected); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: commitgate config lock --config %s", path, err, path)
	}
	return nil
}

func anchorPath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// applyConfigDefaults fills zero values from Defaults().
func applyConfigDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.Listen == "" {
		cfg.Service.Listen = d.Service.Listen
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}
	if cfg.Service.InvocationBudget == 0 {
		cfg.Service.InvocationBudget = d.Service.InvocationBudget
	}
	if cfg.Service.ReportGrace == 0 {
		cfg.Service.ReportGrace = d.Service.ReportGrace
	}

	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = d.Ledger.Path
	}
	if cfg.Ledger.Retention == 0 {
		cfg.Ledger.Retention = d.Ledger.Retention
	}

	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = d.Webhook.Path
	}
	if cfg.Webhook.SignatureHeader == "" {
		cfg.Webhook.SignatureHeader = d.Webhook.SignatureHeader
	}
	if cfg.Webhook.MaxBodySize == "" {
		cfg.Webhook.MaxBodySize = d.Webhook.MaxBodySize
	}
	if cfg.Webhook.SecretRef == "" {
		cfg.Webhook.SecretRef = d.Webhook.SecretRef
	}

	if cfg.VCS.BaseURL == "" {
		cfg.VCS.BaseURL = d.VCS.BaseURL
	}
	if cfg.VCS.TokenRef == "" {
		cfg.VCS.TokenRef = d.VCS.TokenRef
	}
	if cfg.VCS.ReportMode == "" {
		cfg.VCS.ReportMode = d.VCS.ReportMode
	}
	if cfg.VCS.StatusContext == "" {
		cfg.VCS.StatusContext = d.VCS.StatusContext
	}
	if cfg.VCS.Fields.AuthorEmail == "" {
		cfg.VCS.Fields.AuthorEmail = d.VCS.Fields.AuthorEmail
	}
	if cfg.VCS.Fields.Signature == "" {
		cfg.VCS.Fields.Signature = d.VCS.Fields.Signature
	}
	if cfg.VCS.Fields.SignedContent == "" {
		cfg.VCS.Fields.SignedContent = d.VCS.Fields.SignedContent
	}

	if cfg.Directory.TokenRef == "" {
		cfg.Directory.TokenRef = d.Directory.TokenRef
	}
	if cfg.Directory.LookupPath == "" {
		cfg.Directory.LookupPath = d.Directory.LookupPath
	}
	if cfg.Directory.FilterParam == "" {
		cfg.Directory.FilterParam = d.Directory.FilterParam
	}
	if cfg.Directory.Cache.Backend == "" {
		cfg.Directory.Cache.Backend = d.Directory.Cache.Backend
	}
	if cfg.Directory.Cache.TTL == 0 {
		cfg.Directory.Cache.TTL = d.Directory.Cache.TTL
	}
	if cfg.Directory.Cache.KeyPrefix == "" {
		cfg.Directory.Cache.KeyPrefix = d.Directory.Cache.KeyPrefix
	}

	if cfg.Signature.Scheme == "" {
		cfg.Signature.Scheme = d.Signature.Scheme
	}
	if cfg.Signature.Encoding == "" {
		if cfg.Signature.Scheme == "cms" {
			cfg.Signature.Encoding = "pem"
		} else {
			cfg.Signature.Encoding = "base64"
		}
	}

	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP.Timeout = d.HTTP.Timeout
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if cfg.Retry.BackoffBase == 0 {
		cfg.Retry.BackoffBase = d.Retry.BackoffBase
	}
	if cfg.Retry.BackoffMax == 0 {
		cfg.Retry.BackoffMax = d.Retry.BackoffMax
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.InvocationBudget <= 0 {
		return fmt.Errorf("service.invocation_budget must be positive")
	}
	if cfg.Service.ReportGrace <= 0 {
		return fmt.Errorf("service.report_grace must be positive")
	}

	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		return fmt.Errorf("webhook.path must start with '/' (got %q)", cfg.Webhook.Path)
	}
	if _, err := ParseSize(cfg.Webhook.MaxBodySize); err != nil {
		return fmt.Errorf("webhook.max_body_size: %w", err)
	}

	if err := validateBaseURL("vcs.base_url", cfg.VCS.BaseURL); err != nil {
		return err
	}
	if cfg.VCS.ReportMode != ReportModeStatus && cfg.VCS.ReportMode != ReportModeCheckRun {
		return fmt.Errorf("vcs.report_mode must be %q or %q (got %q)", ReportModeStatus, ReportModeCheckRun, cfg.VCS.ReportMode)
	}

	if cfg.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}
	if err := validateBaseURL("directory.base_url", cfg.Directory.BaseURL); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Directory.LookupPath, "/") {
		return fmt.Errorf("directory.lookup_path must start with '/' (got %q)", cfg.Directory.LookupPath)
	}
	switch cfg.Directory.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if cfg.Directory.Cache.RedisAddr == "" {
			return fmt.Errorf("directory.cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("directory.cache.backend must be %q or %q (got %q)", CacheBackendMemory, CacheBackendRedis, cfg.Directory.Cache.Backend)
	}
	if cfg.Directory.Cache.TTL < 0 {
		return fmt.Errorf("directory.cache.ttl must not be negative")
	}

	if !validSchemes[cfg.Signature.Scheme] {
		return fmt.Errorf("signature.scheme %q is not supported", cfg.Signature.Scheme)
	}
	if !validEncodings[cfg.Signature.Encoding] {
		return fmt.Errorf("signature.encoding must be pem, base64 or hex (got %q)", cfg.Signature.Encoding)
	}

	if cfg.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if cfg.Retry.BackoffMax < cfg.Retry.BackoffBase {
		return fmt.Errorf("retry.backoff_max must be >= retry.backoff_base")
	}

	// Secret references are names, not values. An unresolved ${VAR} here means
	// someone tried to inline a secret from the environment and it is unset.
	refs := map[string]string{
		"webhook.secret_ref":  cfg.Webhook.SecretRef,
		"vcs.token_ref":       cfg.VCS.TokenRef,
		"directory.token_ref": cfg.Directory.TokenRef,
		"ops.token_ref":       cfg.Ops.TokenRef,
	}
	for field, ref := range refs {
		if envVarPattern.MatchString(ref) {
			matches := envVarPattern.FindStringSubmatch(ref)
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
		}
	}

	return nil
}

func validateBaseURL(field, raw string) error {
	if !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "http://") {
		return fmt.Errorf("%s must be an http(s) URL (got %q)", field, raw)
	}
	return nil
}

// RequiredSecretRefs returns the secret names every invocation needs.
func (c *Config) RequiredSecretRefs() []string {
	return []string{c.Webhook.SecretRef, c.VCS.TokenRef, c.Directory.TokenRef}
}

// MaxBodyBytes returns the parsed webhook body limit.
func (c *Config) MaxBodyBytes() int64 {
	n, err := ParseSize(c.Webhook.MaxBodySize)
	if err != nil {
		return DefaultMaxBodySize
	}
	return n
}

// DefaultMaxBodySize is used when webhook.max_body_size is empty.
const DefaultMaxBodySize = 1048576 // 1 MB

// ParseSize parses size strings like "1MB", "512KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func ParseSize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
