package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SourceConfig locates the regulator's open-data listing and registry export.
type SourceConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RegistryURL  string  `yaml:"registry_url" mapstructure:"registry_url"`
	QuarterLimit int     `yaml:"quarter_limit" mapstructure:"quarter_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// Timeout returns the per-request timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// PathsConfig names the directories and artifact files used between stages.
type PathsConfig struct {
	RawDir           string `yaml:"raw_dir" mapstructure:"raw_dir"`
	ProcessedDir     string `yaml:"processed_dir" mapstructure:"processed_dir"`
	ConsolidatedFile string `yaml:"consolidated_file" mapstructure:"consolidated_file"`
	AggregatedFile   string `yaml:"aggregated_file" mapstructure:"aggregated_file"`
	SummaryFile      string `yaml:"summary_file" mapstructure:"summary_file"`
	ReportFile       string `yaml:"report_file" mapstructure:"report_file"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	StatsLimit        int      `yaml:"stats_limit" mapstructure:"stats_limit"`
	StatsCacheTTLSecs int      `yaml:"stats_cache_ttl_secs" mapstructure:"stats_cache_ttl_secs"`
	DefaultPageSize   int      `yaml:"default_page_size" mapstructure:"default_page_size"`
	MaxPageSize       int      `yaml:"max_page_size" mapstructure:"max_page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source.base_url", "https://dadosabertos.ans.gov.br/FTP/PDA/demonstracoes_contabeis/")
	v.SetDefault("source.registry_url", "https://dadosabertos.ans.gov.br/FTP/PDA/operadoras_de_plano_de_saude_ativas/Relatorio_cadop.csv")
	v.SetDefault("source.quarter_limit", 3)
	v.SetDefault("source.timeout_secs", 30)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.rate_limit", 5.0)
	v.SetDefault("source.user_agent", "ans-cli/1.0")
	v.SetDefault("paths.raw_dir", "data/raw")
	v.SetDefault("paths.processed_dir", "data/processed")
	v.SetDefault("paths.consolidated_file", "consolidado_despesas.csv")
	v.SetDefault("paths.aggregated_file", "despesas_agregadas.csv")
	v.SetDefault("paths.summary_file", "run_summary.yaml")
	v.SetDefault("paths.report_file", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("server.stats_limit", 10)
	v.SetDefault("server.stats_cache_ttl_secs", 60)
	v.SetDefault("server.default_page_size", 10)
	v.SetDefault("server.max_page_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings needed by mode are present. Modes are
// "etl" (discover through aggregate), "db" (migrate, load, status) and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "etl":
		if c.Source.BaseURL == "" {
			problems = append(problems, "source.base_url is required")
		}
		if c.Source.QuarterLimit < 1 {
			problems = append(problems, "source.quarter_limit must be >= 1")
		}
		if c.Source.MaxRetries < 1 {
			problems = append(problems, "source.max_retries must be >= 1")
		}
		if c.Paths.RawDir == "" || c.Paths.ProcessedDir == "" {
			problems = append(problems, "paths.raw_dir and paths.processed_dir are required")
		}
	case "db":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	case "serve":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.DefaultPageSize < 1 || c.Server.DefaultPageSize > c.Server.MaxPageSize {
			problems = append(problems, "server.default_page_size must be between 1 and server.max_page_size")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
