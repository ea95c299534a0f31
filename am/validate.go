package am

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/teranos/pwcmeta/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Location.Metadata == "" {
		return errors.New("location.metadata cannot be empty")
	}
	if c.Extract.MergedSuffix == "" {
		// merged store would overwrite the canonical store
		return errors.New("extract.merged_suffix cannot be empty")
	}

	if c.Retrieve.MaxPapers < 0 {
		return errors.Newf("retrieve.max_papers must be >= 0, got %d", c.Retrieve.MaxPapers)
	}

	// Extraction: a pool needs at least one worker and one attempt
	if c.Extract.Workers < 1 {
		return errors.Newf("extract.workers must be >= 1, got %d", c.Extract.Workers)
	}
	if c.Extract.BatchSize < 0 {
		return errors.Newf("extract.batch_size must be >= 0, got %d", c.Extract.BatchSize)
	}
	if c.Extract.BatchSize == 0 && c.Extract.BatchCount < 1 {
		return errors.Newf("extract.batch_count must be >= 1 when batch_size is 0, got %d", c.Extract.BatchCount)
	}
	if c.Extract.MaxAttempts < 1 {
		return errors.Newf("extract.max_attempts must be >= 1, got %d", c.Extract.MaxAttempts)
	}
	if c.Extract.RetryBackoffSeconds < 0 {
		return errors.Newf("extract.retry_backoff_seconds must be >= 0, got %d", c.Extract.RetryBackoffSeconds)
	}
	if c.Extract.MaxItemSeconds < 0 {
		return errors.Newf("extract.max_item_seconds must be >= 0, got %d", c.Extract.MaxItemSeconds)
	}
	if c.Extract.DeadlineSeconds < 0 {
		return errors.Newf("extract.deadline_seconds must be >= 0, got %d", c.Extract.DeadlineSeconds)
	}
	if c.Extract.RequestTimeoutSeconds <= 0 {
		return errors.Newf("extract.request_timeout_seconds must be > 0, got %d", c.Extract.RequestTimeoutSeconds)
	}
	if c.Extract.CopyBufferBytes <= 0 {
		return errors.Newf("extract.copy_buffer_bytes must be > 0, got %d", c.Extract.CopyBufferBytes)
	}

	// Providers: 0 requests_per_second = unlimited
	for name, p := range map[string]ProviderConfig{"github": c.Providers.GitHub, "gitlab": c.Providers.GitLab} {
		if p.BaseURL == "" {
			return errors.Newf("providers.%s.base_url cannot be empty", name)
		}
		if p.RequestsPerSecond < 0 {
			return errors.Newf("providers.%s.requests_per_second must be >= 0, got %f", name, p.RequestsPerSecond)
		}
		if p.Burst < 0 {
			return errors.Newf("providers.%s.burst must be >= 0, got %d", name, p.Burst)
		}
	}

	if c.Enhance.Workers < 1 {
		return errors.Newf("enhance.workers must be >= 1, got %d", c.Enhance.Workers)
	}
	if c.Enhance.CacheSize < 0 {
		return errors.Newf("enhance.cache_size must be >= 0, got %d", c.Enhance.CacheSize)
	}

	return nil
}

// ValidateFile strictly decodes a TOML file and reports keys that do not map
// onto any configuration field. Viper silently ignores those, so a typo like
// "max_attemps" would otherwise fall back to the default unnoticed.
func ValidateFile(path string) error {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}

	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return errors.WithHint(
		errors.Mark(errors.Newf("%s: unknown keys: %s", path, strings.Join(keys, ", ")), errors.ErrInvalidRequest),
		"run 'pwcmeta am show' to list recognised keys",
	)
}
