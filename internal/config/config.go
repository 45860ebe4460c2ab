// Package config loads orbitrisk settings from defaults, an optional config
// file and ORBITRISK_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orbitrisk/internal/propagation"
)

// EnvPrefix prefixes every environment override, e.g. ORBITRISK_HTTP_ADDR.
const EnvPrefix = "ORBITRISK"

type HTTPConfig struct {
	Addr string
	// MaxScreensPerIP bounds concurrent on-demand screenings per client.
	MaxScreensPerIP int
	// ScreenBudget bounds pairs × samples of one on-demand screening.
	ScreenBudget int64
	// ScreenTimeout cancels an on-demand screening, which then returns partial.
	ScreenTimeout     time.Duration
	MaxStreamsPerIP   int
	KeepaliveInterval time.Duration
	TrustProxy        bool
	// AuthToken guards catalog uploads and fetches; empty disables auth.
	AuthToken        string
	AuthProtectReads bool
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type CatalogConfig struct {
	Fetch           bool
	SourceURL       string
	ExtraURLs       []string
	CacheDir        string
	MaxFiles        int
	RefreshInterval time.Duration
}

type PropagationConfig struct {
	Workers      int
	Backend      propagation.Backend
	RegistrySize int
	RegistryTTL  time.Duration
}

type ScreeningConfig struct {
	MaxSamples       int
	RefineIterations int
	RefineTolerance  time.Duration
	MaxCandidates    int
	Horizon          time.Duration
	Step             time.Duration
	ThresholdKm      float64
}

type AlertsConfig struct {
	Enabled     bool
	Interval    time.Duration
	Horizon     time.Duration
	Step        time.Duration
	ThresholdKm float64
	Limit       int
}

type HistoryConfig struct {
	// Path of the SQLite database; empty disables history.
	Path     string
	KeepRuns int
}

// Config is the complete process configuration.
type Config struct {
	HTTP        HTTPConfig
	Log         LogConfig
	Catalog     CatalogConfig
	Propagation PropagationConfig
	Screening   ScreeningConfig
	Alerts      AlertsConfig
	History     HistoryConfig
}

func defaults() map[string]any {
	return map[string]any{
		"http.addr":               ":8080",
		"http.max_screens_per_ip": 2,
		"http.screen_budget":      int64(2_000_000_000),
		"http.screen_timeout":     "60s",
		"http.max_streams_per_ip": 10,
		"http.keepalive_interval": "30s",
		"http.trust_proxy":        false,
		"http.auth_token":         "",
		"http.auth_protect_reads": false,

		"log.level":        "info",
		"log.file":         "",
		"log.max_size_mb":  64,
		"log.max_backups":  3,
		"log.max_age_days": 14,

		"catalog.fetch":            true,
		"catalog.source_url":       "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle",
		"catalog.extra_urls":       "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		"catalog.cache_dir":        "/tmp/orbitrisk/tle",
		"catalog.max_files":        5,
		"catalog.refresh_interval": "6h",

		"propagation.workers":       runtime.NumCPU(),
		"propagation.backend":       string(propagation.BackendAuto),
		"propagation.registry_size": 50000,
		"propagation.registry_ttl":  "24h",

		"screening.max_samples":       20161,
		"screening.refine_iterations": 64,
		"screening.refine_tolerance":  "1ms",
		"screening.max_candidates":    16,
		"screening.horizon":           "24h",
		"screening.step":              "60s",
		"screening.threshold_km":      5.0,

		"alerts.enabled":      true,
		"alerts.interval":     "10m",
		"alerts.horizon":      "24h",
		"alerts.step":         "60s",
		"alerts.threshold_km": 5.0,
		"alerts.limit":        10,

		"history.path":      "",
		"history.keep_runs": 500,
	}
}

// Load reads the configuration. path names an optional config file (yaml,
// toml or json); a named file that cannot be read is an error. Values that do
// not parse are logged and replaced by their defaults.
func Load(path string, logger *slog.Logger) (*Config, error) {
	v := viper.New()
	defs := defaults()
	for key, value := range defs {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	r := &reader{v: v, defs: defs, logger: logger}
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:              r.str("http.addr"),
			MaxScreensPerIP:   r.positiveInt("http.max_screens_per_ip"),
			ScreenBudget:      r.positiveInt64("http.screen_budget"),
			ScreenTimeout:     r.duration("http.screen_timeout"),
			MaxStreamsPerIP:   r.positiveInt("http.max_streams_per_ip"),
			KeepaliveInterval: r.duration("http.keepalive_interval"),
			TrustProxy:        r.boolean("http.trust_proxy"),
			AuthToken:         r.str("http.auth_token"),
			AuthProtectReads:  r.boolean("http.auth_protect_reads"),
		},
		Log: LogConfig{
			Level:      r.str("log.level"),
			File:       r.str("log.file"),
			MaxSizeMB:  r.positiveInt("log.max_size_mb"),
			MaxBackups: r.positiveInt("log.max_backups"),
			MaxAgeDays: r.positiveInt("log.max_age_days"),
		},
		Catalog: CatalogConfig{
			Fetch:           r.boolean("catalog.fetch"),
			SourceURL:       r.str("catalog.source_url"),
			ExtraURLs:       r.list("catalog.extra_urls"),
			CacheDir:        r.str("catalog.cache_dir"),
			MaxFiles:        r.positiveInt("catalog.max_files"),
			RefreshInterval: r.duration("catalog.refresh_interval"),
		},
		Propagation: PropagationConfig{
			Workers:      r.positiveInt("propagation.workers"),
			Backend:      r.backend("propagation.backend"),
			RegistrySize: r.positiveInt("propagation.registry_size"),
			RegistryTTL:  r.duration("propagation.registry_ttl"),
		},
		Screening: ScreeningConfig{
			MaxSamples:       r.positiveInt("screening.max_samples"),
			RefineIterations: r.positiveInt("screening.refine_iterations"),
			RefineTolerance:  r.duration("screening.refine_tolerance"),
			MaxCandidates:    r.positiveInt("screening.max_candidates"),
			Horizon:          r.duration("screening.horizon"),
			Step:             r.duration("screening.step"),
			ThresholdKm:      r.positiveFloat("screening.threshold_km"),
		},
		Alerts: AlertsConfig{
			Enabled:     r.boolean("alerts.enabled"),
			Interval:    r.duration("alerts.interval"),
			Horizon:     r.duration("alerts.horizon"),
			Step:        r.duration("alerts.step"),
			ThresholdKm: r.positiveFloat("alerts.threshold_km"),
			Limit:       r.positiveInt("alerts.limit"),
		},
		History: HistoryConfig{
			Path:     r.str("history.path"),
			KeepRuns: r.nonNegativeInt("history.keep_runs"),
		},
	}
	return cfg, nil
}

// reader converts raw values and falls back to defaults on bad input.
type reader struct {
	v      *viper.Viper
	defs   map[string]any
	logger *slog.Logger
}

func (r *reader) invalid(key string, value any) {
	r.logger.Warn("invalid config value, using default",
		"key", key,
		"env", EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", value,
		"default", r.defs[key],
	)
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(r.v.GetString(key))
}

func (r *reader) positiveInt(key string) int {
	raw := r.str(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		r.invalid(key, raw)
		return r.defs[key].(int)
	}
	return n
}

func (r *reader) nonNegativeInt(key string) int {
	raw := r.str(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.invalid(key, raw)
		return r.defs[key].(int)
	}
	return n
}

func (r *reader) positiveInt64(key string) int64 {
	raw := r.str(key)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		r.invalid(key, raw)
		return r.defs[key].(int64)
	}
	return n
}

func (r *reader) positiveFloat(key string) float64 {
	raw := r.str(key)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(f > 0) || f > 1e9 {
		r.invalid(key, raw)
		return r.defs[key].(float64)
	}
	return f
}

func (r *reader) boolean(key string) bool {
	raw := r.str(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.invalid(key, raw)
		return r.defs[key].(bool)
	}
	return b
}

// duration accepts Go duration strings; a bare integer is seconds.
func (r *reader) duration(key string) time.Duration {
	raw := r.str(key)
	d, err := parseDuration(raw)
	if err != nil || d <= 0 {
		r.invalid(key, raw)
		d, _ = parseDuration(r.defs[key].(string))
	}
	return d
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func (r *reader) backend(key string) propagation.Backend {
	raw := r.str(key)
	b, err := propagation.ParseBackend(raw)
	if err != nil {
		r.invalid(key, raw)
		return propagation.Backend(r.defs[key].(string))
	}
	return b
}

// list accepts a comma separated string or a config file list.
func (r *reader) list(key string) []string {
	var items []string
	switch raw := r.v.Get(key).(type) {
	case []any:
		for _, item := range raw {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = raw
	default:
		items = strings.Split(r.str(key), ",")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks cross-field constraints that no single default can fix.
func (c *Config) Validate() error {
	var errs []error
	if c.Screening.Step > c.Screening.Horizon {
		errs = append(errs, errors.New("screening.step exceeds screening.horizon"))
	}
	if c.HTTP.AuthProtectReads && c.HTTP.AuthToken == "" {
		errs = append(errs, errors.New("http.auth_protect_reads needs http.auth_token"))
	}
	if c.Alerts.Step > c.Alerts.Horizon {
		errs = append(errs, errors.New("alerts.step exceeds alerts.horizon"))
	}
	if c.Alerts.Enabled && int(c.Alerts.Horizon/c.Alerts.Step)+1 > c.Screening.MaxSamples {
		errs = append(errs, fmt.Errorf("alerts window needs more than screening.max_samples (%d) samples", c.Screening.MaxSamples))
	}
	return errors.Join(errs...)
}
