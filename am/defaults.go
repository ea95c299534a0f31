package am

import (
	"github.com/spf13/viper"
)

// Default values that other packages refer to directly
const (
	DefaultCatalogURL   = "https://production-media.paperswithcode.com/about/links-between-papers-and-code.json.gz"
	DefaultMergedSuffix = ".merged.nt"
	DefaultGitHubAPI    = "https://api.github.com"
	DefaultGitLabAPI    = "https://gitlab.com/api/v4"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Locations
	v.SetDefault("location.catalog_url", DefaultCatalogURL)
	v.SetDefault("location.all_papers", "data/raw/papers_with_code.json.gz")
	v.SetDefault("location.filtered_papers", "data/processed/filtered_papers.json.gz")
	v.SetDefault("location.metadata", "data/processed/projects_meta.nt")
	v.SetDefault("location.meta_table", "data/processed/projects_meta.csv")
	v.SetDefault("location.combined", "data/processed/combined.csv")
	v.SetDefault("location.table_db", ":memory:")
	v.SetDefault("location.work_dir", "")

	v.SetDefault("retrieve.max_papers", 100)

	// Extraction pipeline
	v.SetDefault("extract.workers", 4)
	v.SetDefault("extract.batch_size", 0)
	v.SetDefault("extract.batch_count", 10)
	v.SetDefault("extract.retry_backoff_seconds", 100) // observed provider cool-down
	v.SetDefault("extract.max_attempts", 5)
	v.SetDefault("extract.max_item_seconds", 0)
	v.SetDefault("extract.deadline_seconds", 0)
	v.SetDefault("extract.request_timeout_seconds", 30)
	v.SetDefault("extract.copy_buffer_bytes", 64*1024)
	v.SetDefault("extract.merged_suffix", DefaultMergedSuffix)

	// Providers: GitHub allows 5000 authenticated calls/hour
	v.SetDefault("providers.github.base_url", DefaultGitHubAPI)
	v.SetDefault("providers.github.requests_per_second", 1.2)
	v.SetDefault("providers.github.burst", 4)
	v.SetDefault("providers.gitlab.base_url", DefaultGitLabAPI)
	v.SetDefault("providers.gitlab.requests_per_second", 5.0)
	v.SetDefault("providers.gitlab.burst", 10)

	v.SetDefault("enhance.workers", 4)
	v.SetDefault("enhance.cache_size", 4096)

	v.SetDefault("metrics.textfile", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables.
// The bare GITHUB_TOKEN / GITLAB_TOKEN names are what most tooling exports.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("providers.github.token", "PWCMETA_PROVIDERS_GITHUB_TOKEN", "GITHUB_TOKEN")
	v.BindEnv("providers.gitlab.token", "PWCMETA_PROVIDERS_GITLAB_TOKEN", "GITLAB_TOKEN")
	v.BindEnv("location.work_dir", "PWCMETA_WORK_DIR")
}
