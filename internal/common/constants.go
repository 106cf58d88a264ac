package common

import "time"

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvSnowflakeUser      = "SNOWFLAKE_USER"
	EnvSnowflakePassword  = "SNOWFLAKE_PASSWORD"
	EnvSnowflakeAccount   = "SNOWFLAKE_ACCOUNT"
	EnvSnowflakeWarehouse = "SNOWFLAKE_WAREHOUSE"
	EnvSnowflakeDatabase  = "SNOWFLAKE_DATABASE"
	EnvSnowflakeSchema    = "SNOWFLAKE_SCHEMA"
	EnvSnowflakeRole      = "SNOWFLAKE_ROLE"
	EnvSnowflakeToken     = "SNOWFLAKE_TOKEN"
	EnvSnowflakeRESTURL   = "SNOWFLAKE_REST_URL"
	EnvWarehouseURL       = "WAREHOUSE_URL"
	EnvWarehouseMode      = "WAREHOUSE_MODE"
	EnvModelsDir          = "MODELS_DIR"
	EnvDataDir            = "DATA_DIR"
	EnvStorePath          = "STORE_PATH"
	EnvBatchSize          = "BATCH_SIZE"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFile            = "LOG_FILE"
	EnvMetricsFile        = "METRICS_FILE"
	EnvQueryTimeout       = "QUERY_TIMEOUT"
	EnvHighRiskThreshold  = "HIGH_RISK_THRESHOLD"
	EnvAtRiskThreshold    = "AT_RISK_THRESHOLD"
)

// Warehouse access modes
const (
	WarehouseModeSQL  = "sql"
	WarehouseModeREST = "rest"
)

// Configuration defaults
const (
	DefaultModelsDir         = "models"
	DefaultDataDir           = "data"
	DefaultStorePath         = "data/obtml-runs.db"
	DefaultBatchSize         = 1000
	DefaultLogLevel          = "info"
	DefaultQueryTimeout      = 5 * time.Minute
	DefaultHighRiskThreshold = 0.7
	DefaultAtRiskThreshold   = 0.6
)

// Model artifact names, relative to the models directory
const (
	DelayModelFile  = "delivery_delay_model.gob"
	ChurnModelFile  = "churn_prediction_model.gob"
	ReviewModelFile = "review_score_model.gob"
)

// Persisted split prefix, relative to the data directory
const DelaySplitPrefix = "delivery_prediction"

// Common error messages
const (
	ErrMsgCredentialsRequired = "SNOWFLAKE_USER, SNOWFLAKE_PASSWORD and SNOWFLAKE_ACCOUNT are required"
	ErrMsgTokenRequired       = "rest mode requires SNOWFLAKE_TOKEN"
)

// Validation constants
const (
	MinBatchSize    = 1
	MaxBatchSize    = 1_000_000
	MinQueryTimeout = time.Second
	MaxQueryTimeout = time.Hour
)
