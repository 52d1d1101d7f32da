package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:packfinderz_stock.db?cache=shared&_busy_timeout=5000"
)

const (
	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvRedisURL  = "PACKFINDERZ_REDIS_URL"
	EnvUseSQLite = "PACKFINDERZ_USE_SQLITE"

	EnvReservationDefaultHold = "PACKFINDERZ_RESERVATION_DEFAULT_HOLD"
	EnvReservationMaxHold     = "PACKFINDERZ_RESERVATION_MAX_HOLD"

	EnvSweeperInterval  = "PACKFINDERZ_SWEEPER_INTERVAL"
	EnvSweeperBatchSize = "PACKFINDERZ_SWEEPER_BATCH_SIZE"

	EnvGCPProjectID          = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvPubSubStockAlertTopic = "PACKFINDERZ_PUBSUB_STOCK_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
