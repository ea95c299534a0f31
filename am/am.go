package am

import "time"

// Config represents the pwcmeta configuration
type Config struct {
	Location  LocationConfig  `mapstructure:"location" toml:"location"`
	Retrieve  RetrieveConfig  `mapstructure:"retrieve" toml:"retrieve"`
	Extract   ExtractConfig   `mapstructure:"extract" toml:"extract"`
	Providers ProvidersConfig `mapstructure:"providers" toml:"providers"`
	Enhance   EnhanceConfig   `mapstructure:"enhance" toml:"enhance"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics"`
}

// LocationConfig names the inputs and outputs of every stage
type LocationConfig struct {
	CatalogURL     string `mapstructure:"catalog_url" toml:"catalog_url"`         // links-between-papers-and-code dump
	AllPapers      string `mapstructure:"all_papers" toml:"all_papers"`           // downloaded catalog (gzip JSON)
	FilteredPapers string `mapstructure:"filtered_papers" toml:"filtered_papers"` // github/gitlab-only papers (gzip JSON)
	Metadata       string `mapstructure:"metadata" toml:"metadata"`               // canonical store (N-Triples)
	MetaTable      string `mapstructure:"meta_table" toml:"meta_table"`           // exported CSV
	Combined       string `mapstructure:"combined" toml:"combined"`               // popularity-enriched CSV joined with papers
	TableDB        string `mapstructure:"table_db" toml:"table_db"`               // SQLite statement table (":memory:" = transient)
	WorkDir        string `mapstructure:"work_dir" toml:"work_dir"`               // per-item artifacts (empty = OS temp dir)
}

// RetrieveConfig configures the catalog filtering step
type RetrieveConfig struct {
	MaxPapers int `mapstructure:"max_papers" toml:"max_papers"` // 0 = keep all
}

// ExtractConfig configures the extraction pipeline
type ExtractConfig struct {
	Workers               int    `mapstructure:"workers" toml:"workers"`                                 // concurrent fetches per batch
	BatchSize             int    `mapstructure:"batch_size" toml:"batch_size"`                           // 0 = derive from batch_count
	BatchCount            int    `mapstructure:"batch_count" toml:"batch_count"`                         // desired number of batches when batch_size is 0
	RetryBackoffSeconds   int    `mapstructure:"retry_backoff_seconds" toml:"retry_backoff_seconds"`     // fixed delay between transient retries
	MaxAttempts           int    `mapstructure:"max_attempts" toml:"max_attempts"`                       // attempts per item, including the first
	MaxItemSeconds        int    `mapstructure:"max_item_seconds" toml:"max_item_seconds"`               // 0 = no elapsed cap per item
	DeadlineSeconds       int    `mapstructure:"deadline_seconds" toml:"deadline_seconds"`               // 0 = no global deadline
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" toml:"request_timeout_seconds"` // per HTTP request
	CopyBufferBytes       int    `mapstructure:"copy_buffer_bytes" toml:"copy_buffer_bytes"`             // concatenator buffer
	MergedSuffix          string `mapstructure:"merged_suffix" toml:"merged_suffix"`                     // merged store = metadata + suffix
}

// ProvidersConfig configures hosting-provider API access
type ProvidersConfig struct {
	GitHub ProviderConfig `mapstructure:"github" toml:"github"`
	GitLab ProviderConfig `mapstructure:"gitlab" toml:"gitlab"`
}

// ProviderConfig configures a single hosting-provider API
type ProviderConfig struct {
	BaseURL           string  `mapstructure:"base_url" toml:"base_url"`
	Token             string  `mapstructure:"token" toml:"token"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" toml:"burst"`
}

// EnhanceConfig configures popularity enrichment
type EnhanceConfig struct {
	Workers   int `mapstructure:"workers" toml:"workers"`
	CacheSize int `mapstructure:"cache_size" toml:"cache_size"`
}

// MetricsConfig configures metrics output
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" toml:"textfile"` // Prometheus textfile path (empty = disabled)
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// RetryBackoff returns the fixed delay between transient retries.
func (e ExtractConfig) RetryBackoff() time.Duration {
	return time.Duration(e.RetryBackoffSeconds) * time.Second
}

// MaxItemElapsed returns the per-item elapsed cap (0 = none).
func (e ExtractConfig) MaxItemElapsed() time.Duration {
	return time.Duration(e.MaxItemSeconds) * time.Second
}

// Deadline returns the global pipeline deadline (0 = none).
func (e ExtractConfig) Deadline() time.Duration {
	return time.Duration(e.DeadlineSeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (e ExtractConfig) RequestTimeout() time.Duration {
	return time.Duration(e.RequestTimeoutSeconds) * time.Second
}

// MergedPath returns the path of the temporary merged store, which lives
// alongside the canonical store.
func (c *Config) MergedPath() string {
	suffix := c.Extract.MergedSuffix
	if suffix == "" {
		suffix = DefaultMergedSuffix
	}
	return c.Location.Metadata + suffix
}

// Redacted returns a copy with provider tokens masked, for display.
func (c Config) Redacted() Config {
	c.Providers.GitHub.Token = MaskToken(c.Providers.GitHub.Token)
	c.Providers.GitLab.Token = MaskToken(c.Providers.GitLab.Token)
	return c
}

// MaskToken keeps the first four characters of a secret.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
