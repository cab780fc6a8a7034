package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/heartmarshall/featurelens/internal/tokenizer"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Lookup.validate(); err != nil {
		return fmt.Errorf("lookup: %w", err)
	}

	if err := c.Retry.validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache: ttl must be >= 0 (got %v)", c.Cache.TTL)
	}

	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session: max_sessions must be > 0 (got %d)", c.Session.MaxSessions)
	}

	if _, ok := tokenizer.ParseForm(c.Tokenizer.UnicodeForm); !ok {
		return fmt.Errorf("tokenizer: unknown unicode_form %q", c.Tokenizer.UnicodeForm)
	}

	if c.RateLimit.LookupsPerMinute < 0 {
		return fmt.Errorf("rate_limit: lookups_per_minute must be >= 0 (got %d)", c.RateLimit.LookupsPerMinute)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port out of range (got %d)", c.Server.Port)
	}

	return nil
}

func (l *LookupConfig) validate() error {
	if strings.TrimSpace(l.Credential) == "" {
		return fmt.Errorf("credential is required")
	}

	u, err := url.Parse(l.EndpointURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint_url must be an absolute URL (got %q)", l.EndpointURL)
	}

	if l.ModelID == "" {
		return fmt.Errorf("model_id is required")
	}
	if l.MaxResults <= 0 {
		return fmt.Errorf("max_results must be > 0 (got %d)", l.MaxResults)
	}
	if l.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0 (got %v)", l.RequestTimeout)
	}

	l.Layers = ParseList(l.LayersRaw)
	if len(l.Layers) == 0 {
		return fmt.Errorf("layers: at least one layer is required")
	}

	indexes, err := ParseIntList(l.SortIndexesRaw)
	if err != nil {
		return fmt.Errorf("sort_indexes: %w", err)
	}
	l.SortIndexes = indexes

	return nil
}

func (r *RetryConfig) validate() error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", r.MaxAttempts)
	}
	if r.InitialInterval < 0 || r.MaxInterval < 0 {
		return fmt.Errorf("intervals must be >= 0")
	}
	if r.MaxInterval > 0 && r.InitialInterval > r.MaxInterval {
		return fmt.Errorf("initial_interval (%v) exceeds max_interval (%v)", r.InitialInterval, r.MaxInterval)
	}
	return nil
}

// ParseList splits a comma-separated string, trimming blanks.
// An empty string returns a nil slice.
func ParseList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseIntList parses a comma-separated list of integers (e.g. "0,3,5").
func ParseIntList(raw string) ([]int, error) {
	parts := ParseList(raw)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
