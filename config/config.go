// Package config loads runtime settings from a YAML or TOML file, with FXLIB_
// environment variables taking precedence.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/meenmo/fxlib/backsolve"
	"github.com/meenmo/fxlib/logging"
	"github.com/meenmo/fxlib/market"
)

// EnvPrefix prefixes every environment override, e.g. FXLIB_SOLVER_LOCK_MODE.
const EnvPrefix = "FXLIB"

// Config holds every tunable of a session and its tools.
type Config struct {
	Logger   logging.Config `mapstructure:"logger"`
	Market   MarketConfig   `mapstructure:"market"`
	Solver   SolverConfig   `mapstructure:"solver"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
}

type MarketConfig struct {
	// Pair is the pair a session starts on.
	Pair string `mapstructure:"pair"`
	// StaleAfter flags feed values older than this as stale. Zero disables the sweep.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type SolverConfig struct {
	// LockMode is HOLD_RD, HOLD_RF or SPLIT.
	LockMode string `mapstructure:"lock_mode"`
}

type CalendarConfig struct {
	// SpotLags overrides the market spot lag per pair, e.g. {"USDCAD": 1}.
	SpotLags map[string]int `mapstructure:"spot_lags"`
}

type RefreshConfig struct {
	// Concurrency bounds in-flight rate requests.
	Concurrency int `mapstructure:"concurrency"`
	// Timeout bounds one refresh round.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig provides production-ready default values.
var DefaultConfig = Config{
	Logger: logging.DefaultConfig,
	Market: MarketConfig{
		Pair:       "EURUSD",
		StaleAfter: 30 * time.Second,
	},
	Solver:   SolverConfig{LockMode: "HOLD_RD"},
	Calendar: CalendarConfig{SpotLags: map[string]int{}},
	Refresh: RefreshConfig{
		Concurrency: 4,
		Timeout:     5 * time.Second,
	},
}

var (
	mu  sync.RWMutex
	cfg = DefaultConfig
)

// SetConfig replaces the active configuration.
func SetConfig(c Config) {
	mu.Lock()
	cfg = c
	mu.Unlock()
}

// GetConfig returns the active configuration.
func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.output", d.Logger.Output)
	v.SetDefault("logger.file_path", d.Logger.FilePath)
	v.SetDefault("logger.max_size_mb", d.Logger.MaxSizeMB)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age_days", d.Logger.MaxAgeDays)
	v.SetDefault("logger.compress", d.Logger.Compress)
	v.SetDefault("logger.with_caller", d.Logger.WithCaller)
	v.SetDefault("market.pair", d.Market.Pair)
	v.SetDefault("market.stale_after", d.Market.StaleAfter)
	v.SetDefault("solver.lock_mode", d.Solver.LockMode)
	v.SetDefault("calendar.spot_lags", d.Calendar.SpotLags)
	v.SetDefault("refresh.concurrency", d.Refresh.Concurrency)
	v.SetDefault("refresh.timeout", d.Refresh.Timeout)
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the fields other packages parse.
func (c Config) Validate() error {
	if _, err := c.Pair(); err != nil {
		return fmt.Errorf("config: market.pair: %w", err)
	}
	if _, err := c.LockMode(); err != nil {
		return fmt.Errorf("config: solver.lock_mode: %w", err)
	}
	if _, err := c.SpotLags(); err != nil {
		return fmt.Errorf("config: calendar.spot_lags: %w", err)
	}
	if c.Market.StaleAfter < 0 || c.Refresh.Timeout < 0 {
		return fmt.Errorf("config: durations must not be negative: %w", market.ErrInvalidInput)
	}
	return nil
}

// Pair parses Market.Pair.
func (c Config) Pair() (market.Pair, error) {
	return market.ParsePair(c.Market.Pair)
}

// LockMode parses Solver.LockMode.
func (c Config) LockMode() (backsolve.LockMode, error) {
	return backsolve.ParseLockMode(c.Solver.LockMode)
}

// SpotLags parses the spot lag overrides.
func (c Config) SpotLags() (map[market.Pair]int, error) {
	out := make(map[market.Pair]int, len(c.Calendar.SpotLags))
	for k, n := range c.Calendar.SpotLags {
		p, err := market.ParsePair(k)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%s spot lag %d: %w", p, n, market.ErrInvalidInput)
		}
		out[p] = n
	}
	return out, nil
}
