package config

const (
	// EnvPrefix is passed to envconfig; individual fields carry explicit
	// BLOOMCART_* names so the prefix stays empty.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BLOOMCART_DB_DSN"
	EnvDBHost = "BLOOMCART_DB_HOST"
	EnvDBUser = "BLOOMCART_DB_USER"
	EnvDBName = "BLOOMCART_DB_NAME"
)

var requiredDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
