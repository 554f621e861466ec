package config

const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StorageBackendMemory = "memory"
	StorageBackendRedis  = "redis"
)

const (
	EnvAppEnv                = "STOREFRONT_APP_ENV"
	EnvPort                  = "STOREFRONT_APP_PORT"
	EnvDBDSN                 = "STOREFRONT_DB_DSN"
	EnvDBHost                = "STOREFRONT_DB_HOST"
	EnvDBUser                = "STOREFRONT_DB_USER"
	EnvDBName                = "STOREFRONT_DB_NAME"
	EnvRedisURL              = "STOREFRONT_REDIS_URL"
	EnvRedisAddr             = "STOREFRONT_REDIS_ADDR"
	EnvStorageBackend        = "STOREFRONT_STORAGE_BACKEND"
	EnvJWTSecret             = "STOREFRONT_JWT_SECRET"
	EnvFreeShippingThreshold = "STOREFRONT_FREE_SHIPPING_THRESHOLD"
	EnvFlatShippingFee       = "STOREFRONT_FLAT_SHIPPING_FEE"
	EnvActionDebounce        = "STOREFRONT_ACTION_DEBOUNCE"
	EnvUseSQLite             = "STOREFRONT_USE_SQLITE"
)

var dbEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
