package cfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"olist-ml/internal/common"
	"olist-ml/internal/warehouse"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Snowflake     warehouse.SnowflakeConfig
	Token         string // SQL API bearer token, rest mode only
	RESTURL       string // SQL API endpoint, derived from the account when empty
	WarehouseURL  string // driver://dsn, overrides the Snowflake settings in sql mode
	WarehouseMode string
	QueryTimeout  time.Duration

	ModelsDir string
	DataDir   string
	StorePath string
	BatchSize int

	HighRiskThreshold float64
	AtRiskThreshold   float64

	LogLevel    string
	LogFile     string
	MetricsFile string
}

type ConfigFile struct {
	Snowflake struct {
		Account   string `yaml:"account"`
		User      string `yaml:"user"`
		Password  string `yaml:"password"`
		Warehouse string `yaml:"warehouse"`
		Database  string `yaml:"database"`
		Schema    string `yaml:"schema"`
		Role      string `yaml:"role"`
		Token     string `yaml:"token"`
		RESTURL   string `yaml:"restURL"`
	} `yaml:"snowflake"`

	Warehouse struct {
		URL          string `yaml:"url"`
		Mode         string `yaml:"mode"`
		QueryTimeout string `yaml:"queryTimeout"`
	} `yaml:"warehouse"`

	ML struct {
		ModelsDir         string  `yaml:"modelsDir"`
		BatchSize         int     `yaml:"batchSize"`
		HighRiskThreshold float64 `yaml:"highRiskThreshold"`
		AtRiskThreshold   float64 `yaml:"atRiskThreshold"`
	} `yaml:"ml"`

	System struct {
		DataDir     string `yaml:"dataDir"`
		StorePath   string `yaml:"storePath"`
		LogLevel    string `yaml:"logLevel"`
		LogFile     string `yaml:"logFile"`
		MetricsFile string `yaml:"metricsFile"`
	} `yaml:"system"`
}

// Load reads settings from the environment, after loading envFiles (or
// .env when none are given) with godotenv. Variables already set in the
// process win over the files. When CONFIG_FILE is set, the YAML file
// provides the values and the environment overrides them.
func Load(envFiles ...string) (Settings, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	queryTimeout, err := time.ParseDuration(config.Warehouse.QueryTimeout)
	if err != nil {
		queryTimeout = common.DefaultQueryTimeout
	}

	settings := Settings{
		Snowflake: warehouse.SnowflakeConfig{
			Account:   getEnvOrDefault(common.EnvSnowflakeAccount, config.Snowflake.Account),
			User:      getEnvOrDefault(common.EnvSnowflakeUser, config.Snowflake.User),
			Password:  getEnvOrDefault(common.EnvSnowflakePassword, config.Snowflake.Password),
			Warehouse: getEnvOrDefault(common.EnvSnowflakeWarehouse, config.Snowflake.Warehouse),
			Database:  getEnvOrDefault(common.EnvSnowflakeDatabase, config.Snowflake.Database),
			Schema:    getEnvOrDefault(common.EnvSnowflakeSchema, config.Snowflake.Schema),
			Role:      getEnvOrDefault(common.EnvSnowflakeRole, config.Snowflake.Role),
		},
		Token:         getEnvOrDefault(common.EnvSnowflakeToken, config.Snowflake.Token),
		RESTURL:       getEnvOrDefault(common.EnvSnowflakeRESTURL, config.Snowflake.RESTURL),
		WarehouseURL:  getEnvOrDefault(common.EnvWarehouseURL, config.Warehouse.URL),
		WarehouseMode: getEnvOrDefault(common.EnvWarehouseMode, orDefault(config.Warehouse.Mode, common.WarehouseModeSQL)),
		QueryTimeout:  getDurationOrDefault(common.EnvQueryTimeout, queryTimeout),

		ModelsDir: getEnvOrDefault(common.EnvModelsDir, orDefault(config.ML.ModelsDir, common.DefaultModelsDir)),
		DataDir:   getEnvOrDefault(common.EnvDataDir, orDefault(config.System.DataDir, common.DefaultDataDir)),
		StorePath: getEnvOrDefault(common.EnvStorePath, orDefault(config.System.StorePath, common.DefaultStorePath)),
		BatchSize: getIntFromEnvOrConfig(common.EnvBatchSize, config.ML.BatchSize, common.DefaultBatchSize),

		HighRiskThreshold: getFloatFromEnvOrConfig(common.EnvHighRiskThreshold, config.ML.HighRiskThreshold, common.DefaultHighRiskThreshold),
		AtRiskThreshold:   getFloatFromEnvOrConfig(common.EnvAtRiskThreshold, config.ML.AtRiskThreshold, common.DefaultAtRiskThreshold),

		LogLevel:    getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFile:     getEnvOrDefault(common.EnvLogFile, config.System.LogFile),
		MetricsFile: getEnvOrDefault(common.EnvMetricsFile, config.System.MetricsFile),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Snowflake: warehouse.SnowflakeConfig{
			Account:   os.Getenv(common.EnvSnowflakeAccount),
			User:      os.Getenv(common.EnvSnowflakeUser),
			Password:  os.Getenv(common.EnvSnowflakePassword),
			Warehouse: os.Getenv(common.EnvSnowflakeWarehouse),
			Database:  os.Getenv(common.EnvSnowflakeDatabase),
			Schema:    os.Getenv(common.EnvSnowflakeSchema),
			Role:      os.Getenv(common.EnvSnowflakeRole),
		},
		Token:         os.Getenv(common.EnvSnowflakeToken),
		RESTURL:       os.Getenv(common.EnvSnowflakeRESTURL),
		WarehouseURL:  os.Getenv(common.EnvWarehouseURL),
		WarehouseMode: getEnvOrDefault(common.EnvWarehouseMode, common.WarehouseModeSQL),
		QueryTimeout:  getDurationOrDefault(common.EnvQueryTimeout, common.DefaultQueryTimeout),

		ModelsDir: getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		DataDir:   getEnvOrDefault(common.EnvDataDir, common.DefaultDataDir),
		StorePath: getEnvOrDefault(common.EnvStorePath, common.DefaultStorePath),
		BatchSize: getIntOrDefault(common.EnvBatchSize, common.DefaultBatchSize),

		HighRiskThreshold: getFloatOrDefault(common.EnvHighRiskThreshold, common.DefaultHighRiskThreshold),
		AtRiskThreshold:   getFloatOrDefault(common.EnvAtRiskThreshold, common.DefaultAtRiskThreshold),

		LogLevel:    getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFile:     os.Getenv(common.EnvLogFile),
		MetricsFile: os.Getenv(common.EnvMetricsFile),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// SourceURL returns the driver://dsn to open in sql mode: WarehouseURL when
// set, otherwise the Snowflake settings.
func (s *Settings) SourceURL() (string, error) {
	if s.WarehouseURL != "" {
		return s.WarehouseURL, nil
	}
	return s.Snowflake.URL()
}

// RESTConfig returns the SQL API client settings for rest mode.
func (s *Settings) RESTConfig() warehouse.RESTConfig {
	base := s.RESTURL
	if base == "" && s.Snowflake.Account != "" {
		base = "https://" + s.Snowflake.Account + ".snowflakecomputing.com"
	}
	return warehouse.RESTConfig{
		BaseURL:   base,
		Token:     s.Token,
		Database:  s.Snowflake.Database,
		Schema:    s.Snowflake.Schema,
		Warehouse: s.Snowflake.Warehouse,
		Role:      s.Snowflake.Role,
		Timeout:   s.QueryTimeout,
	}
}

// ModelPath joins name onto the models directory.
func (s *Settings) ModelPath(name string) string {
	return filepath.Join(s.ModelsDir, name)
}

// SplitPrefix joins prefix onto the data directory.
func (s *Settings) SplitPrefix(prefix string) string {
	return filepath.Join(s.DataDir, prefix)
}

// Level parses LogLevel.
func (s *Settings) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	switch strings.ToLower(settings.WarehouseMode) {
	case common.WarehouseModeSQL:
		settings.WarehouseMode = common.WarehouseModeSQL
		// A full source URL needs no Snowflake credentials.
		if settings.WarehouseURL == "" {
			sf := settings.Snowflake
			if sf.User == "" || sf.Password == "" || sf.Account == "" {
				return errors.New(common.ErrMsgCredentialsRequired)
			}
		} else if _, _, err := warehouse.ParseURL(settings.WarehouseURL); err != nil {
			return fmt.Errorf("invalid warehouse URL: %w", err)
		}
	case common.WarehouseModeREST:
		settings.WarehouseMode = common.WarehouseModeREST
		if settings.Token == "" {
			return errors.New(common.ErrMsgTokenRequired)
		}
		if settings.RESTURL == "" && settings.Snowflake.Account == "" {
			return fmt.Errorf("rest mode requires %s or %s", common.EnvSnowflakeRESTURL, common.EnvSnowflakeAccount)
		}
	default:
		return fmt.Errorf("warehouse mode must be %q or %q, got %q",
			common.WarehouseModeSQL, common.WarehouseModeREST, settings.WarehouseMode)
	}

	if settings.QueryTimeout < common.MinQueryTimeout || settings.QueryTimeout > common.MaxQueryTimeout {
		return fmt.Errorf("query timeout must be between %v and %v, got %v",
			common.MinQueryTimeout, common.MaxQueryTimeout, settings.QueryTimeout)
	}
	if settings.BatchSize < common.MinBatchSize || settings.BatchSize > common.MaxBatchSize {
		return fmt.Errorf("batch size must be between %d and %d, got %d",
			common.MinBatchSize, common.MaxBatchSize, settings.BatchSize)
	}

	if settings.HighRiskThreshold <= 0 || settings.HighRiskThreshold > 1 {
		return fmt.Errorf("high-risk threshold must be in (0, 1], got %f", settings.HighRiskThreshold)
	}
	if settings.AtRiskThreshold <= 0 || settings.AtRiskThreshold > 1 {
		return fmt.Errorf("at-risk threshold must be in (0, 1], got %f", settings.AtRiskThreshold)
	}

	if settings.ModelsDir == "" {
		return errors.New("models directory cannot be empty")
	}
	if settings.DataDir == "" {
		return errors.New("data directory cannot be empty")
	}
	if settings.StorePath == "" {
		return errors.New("store path cannot be empty")
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	return nil
}
