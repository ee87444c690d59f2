package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tbills/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	EnvDataDir  = "TBILLS_DATA_DIR"
	EnvHTTPAddr = "TBILLS_HTTP_ADDR"
	EnvAdmins   = "TBILLS_ADMINS"
)

type Config struct {
	DataDir               string
	HTTPAddr              string
	LogLevel              string
	Dev                   bool
	Admins                []string
	WALSegmentThreshold   int
	WALMaxSegments        int
	WALSyncWrites         bool
	RateFetchTimeout      time.Duration
	RateFetchRetries      int
	RateRefreshSpec       string
	CheckpointInterval    time.Duration
	MaturitySweepInterval time.Duration
	// Platform seeds the trading limits of a store that has never stored any.
	Platform domain.PlatformConfig
}

type ConfigTmp struct {
	DataDir               string        `yaml:"data_dir"`
	HTTPAddr              string        `yaml:"http_addr"`
	LogLevel              string        `yaml:"log_level"`
	Dev                   bool          `yaml:"dev"`
	Admins                []string      `yaml:"admins"`
	WALSegmentThreshold   int           `yaml:"wal_segment_threshold,omitempty"`
	WALMaxSegments        int           `yaml:"wal_max_segments,omitempty"`
	WALSyncWrites         bool          `yaml:"wal_sync_writes"`
	RateFetchTimeout      time.Duration `yaml:"rate_fetch_timeout,omitempty"`
	RateFetchRetries      *int          `yaml:"rate_fetch_retries,omitempty"`
	RateRefreshSpec       string        `yaml:"rate_refresh_spec,omitempty"`
	CheckpointInterval    time.Duration `yaml:"checkpoint_interval,omitempty"`
	MaturitySweepInterval time.Duration `yaml:"maturity_sweep_interval,omitempty"`
	FeePercentageStr      string        `yaml:"fee_percentage,omitempty"`
	MinimumInvestmentStr  string        `yaml:"minimum_investment,omitempty"`
	MaximumInvestmentStr  string        `yaml:"maximum_investment,omitempty"`
}

// Default returns the configuration used when neither flags nor yaml override a value.
func Default() Config {
	return Config{
		DataDir:               "./data",
		HTTPAddr:              ":8080",
		LogLevel:              "info",
		WALSegmentThreshold:   1000,
		WALMaxSegments:        100,
		RateFetchTimeout:      10 * time.Second,
		RateFetchRetries:      2,
		RateRefreshSpec:       "@every 1h",
		CheckpointInterval:    5 * time.Minute,
		MaturitySweepInterval: time.Hour,
		Platform:              domain.DefaultPlatformConfig(),
	}
}

// Get loads an optional .env file, then reads configuration from the command line.
func Get() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "load .env")
	}

	return Load(os.Args[1:])
}

// Load parses args: with -config the yaml file is used, otherwise the flags.
// Environment overrides are applied last.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("tbills", flag.ContinueOnError)
	def := Default()

	configPath := fs.String("config", "", "path to yaml config")
	dataDir := fs.String("datadir", def.DataDir, "directory for the journal and snapshot")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP listen address")
	logLevel := fs.String("loglevel", def.LogLevel, "log level: debug, info, warn, error")
	dev := fs.Bool("dev", false, "development logging")
	admins := fs.String("admins", "", "comma separated admin identities")
	syncWrites := fs.Bool("walsync", false, "fsync every journal write")
	rateTimeout := fs.Duration("ratetimeout", def.RateFetchTimeout, "external rate fetch timeout")
	rateRetries := fs.Int("rateretries", def.RateFetchRetries, "retries of a failed rate fetch")
	rateSpec := fs.String("raterefresh", def.RateRefreshSpec, "cron spec of the rate refresh job")
	checkpoint := fs.Duration("checkpoint", def.CheckpointInterval, "snapshot checkpoint interval")
	sweep := fs.Duration("maturitysweep", def.MaturitySweepInterval, "bill maturity sweep interval")
	fee := fs.String("fee", "", "platform fee as a fraction, example: 0.005")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var (
		cfg Config
		err error
	)
	if *configPath != "" {
		cfg, err = getYaml(*configPath)
		if err != nil {
			return Config{}, err
		}
	} else {
		cfg = def
		cfg.DataDir = *dataDir
		cfg.HTTPAddr = *httpAddr
		cfg.LogLevel = *logLevel
		cfg.Dev = *dev
		cfg.Admins = splitList(*admins)
		cfg.WALSyncWrites = *syncWrites
		cfg.RateFetchTimeout = *rateTimeout
		cfg.RateFetchRetries = *rateRetries
		cfg.RateRefreshSpec = *rateSpec
		cfg.CheckpointInterval = *checkpoint
		cfg.MaturitySweepInterval = *sweep

		if *fee != "" {
			if cfg.Platform.FeePercentage, err = parseFraction(*fee); err != nil {
				return Config{}, fmt.Errorf("invalid --fee provided, --fee=%s: %w", *fee, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.RateFetchRetries < 0 {
		return Config{}, errors.Errorf("rate fetch retries must not be negative, got %d", cfg.RateFetchRetries)
	}

	if err := cfg.Platform.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "platform config")
	}

	return cfg, nil
}

func getYaml(path string) (Config, error) {
	var c ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &c); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if c.HTTPAddr != "" {
		cfg.HTTPAddr = c.HTTPAddr
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	cfg.Dev = c.Dev
	cfg.Admins = c.Admins
	cfg.WALSyncWrites = c.WALSyncWrites
	if c.WALSegmentThreshold > 0 {
		cfg.WALSegmentThreshold = c.WALSegmentThreshold
	}
	if c.WALMaxSegments > 0 {
		cfg.WALMaxSegments = c.WALMaxSegments
	}
	if c.RateFetchTimeout > 0 {
		cfg.RateFetchTimeout = c.RateFetchTimeout
	}
	if c.RateFetchRetries != nil {
		cfg.RateFetchRetries = *c.RateFetchRetries
	}
	if c.RateRefreshSpec != "" {
		cfg.RateRefreshSpec = c.RateRefreshSpec
	}
	if c.CheckpointInterval > 0 {
		cfg.CheckpointInterval = c.CheckpointInterval
	}
	if c.MaturitySweepInterval > 0 {
		cfg.MaturitySweepInterval = c.MaturitySweepInterval
	}

	if c.FeePercentageStr != "" {
		if cfg.Platform.FeePercentage, err = parseFraction(c.FeePercentageStr); err != nil {
			return Config{}, fmt.Errorf("incorrect 'fee_percentage' param in yaml config (must be a decimal), error: %w", err)
		}
	}
	if c.MinimumInvestmentStr != "" {
		if cfg.Platform.MinimumInvestment, err = strconv.ParseInt(c.MinimumInvestmentStr, 10, 64); err != nil {
			return Config{}, fmt.Errorf("incorrect 'minimum_investment' param in yaml config (must be cents), error: %w", err)
		}
	}
	if c.MaximumInvestmentStr != "" {
		if cfg.Platform.MaximumInvestment, err = strconv.ParseInt(c.MaximumInvestmentStr, 10, 64); err != nil {
			return Config{}, fmt.Errorf("incorrect 'maximum_investment' param in yaml config (must be cents), error: %w", err)
		}
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddr)); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv(EnvAdmins); v != "" {
		cfg.Admins = append(cfg.Admins, splitList(v)...)
	}
}

func parseFraction(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("%s is outside [0, 1]", s)
	}

	return d.InexactFloat64(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
