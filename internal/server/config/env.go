package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "ACCOUNTKEEPER_"

// loadDotEnv exports the variables of path into the process environment.
// Variables already set are not overridden; a missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// parseEnv overlays ACCOUNTKEEPER_* variables. Unset variables leave the
// current value alone; malformed numbers and durations are errors.
func parseEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(name string, dst *int) {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("HTTP_ADDR", &c.EndpointAddrHTTP)
	str("GRPC_ADDR", &c.EndpointAddrGRPC)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("LOG_LEVEL", &c.LogLevel)
	str("SECRET_KEY", &c.SecretKey)
	integer("RESET_TOKEN_VALIDITY_HOURS", &c.ResetTokenValidityHours)
	integer("BCRYPT_COST", &c.BcryptCost)
	str("TOKEN_PURGE_SCHEDULE", &c.TokenPurgeSchedule)
	integer("LOGIN_RATE_BURST", &c.LoginRateBurst)
	str("AMQP_URL", &c.AMQPURL)
	str("AMQP_EXCHANGE", &c.AMQPExchange)
	str("S3_ROOT_USER", &c.S3RootUser)
	str("S3_ROOT_PASSWORD", &c.S3RootPassword)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)

	if v, ok := lookup(envPrefix + "ACCESS_TOKEN_VALIDITY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sACCESS_TOKEN_VALIDITY: %w", envPrefix, err))
		} else {
			c.AccessTokenValidityDuration = d
		}
	}
	if v, ok := lookup(envPrefix + "LOGIN_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sLOGIN_RATE_LIMIT: %w", envPrefix, err))
		} else {
			c.LoginRateLimit = f
		}
	}
	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	return errors.Join(errs...)
}
