package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
		AllowedOrigins            []string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	// RentalConfig holds the business rules of the rental flow.
	RentalConfig struct {
		// DefaultPenaltyPerHour is used when neither the item nor its category defines a rate.
		DefaultPenaltyPerHour decimal.Decimal
		// PenaltyGracePeriod is tolerated after the end date before hours start counting as late.
		PenaltyGracePeriod time.Duration
		Location           *time.Location
	}

	UploadsConfig struct {
		Dir     string
		BaseURL string
		MaxSize int64
	}

	RateLimitConfig struct {
		AuthRate  float64 // requests per second per client
		AuthBurst int
	}

	Config struct {
		Build                     string
		Env                       string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          mail.Address
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridAPIKey            string
		StorageEngine             string // postgres | inmem

		Server    ServerConfig
		Database  DatabaseConfig
		Rental    RentalConfig
		Uploads   UploadsConfig
		RateLimit RateLimitConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration for the current ENV (DEV, TEST, QA, PROD).
// Values are read from the environment (prefixed with the env name, eg. `PROD_DATABASE_HOST`)
// after loading `config/.env.<env>` when it exists.
func NewConfig() *Config {
	conf := viper.New()
	setDefaults(conf)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	confDir := os.Getenv("CONFIG_DIR")
	if confDir == "" {
		confDir = "config"
	}
	dotEnvPath := filepath.Join(confDir, ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return fromViper(env, conf)
}

func setDefaults(conf *viper.Viper) {
	conf.SetTypeByDefaultValue(true)

	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Kenam.Plan")
	conf.SetDefault("secretKey", "k3n@m-pl4n_dev-0nly_s3cr3t;ch4ng3-m3-1n-pr0d!")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridAPIKey", "")
	conf.SetDefault("storageEngine", "postgres")

	conf.SetDefault("server.host", "0.0.0.0")
	conf.SetDefault("server.port", "8000")
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 10*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 30*24*time.Hour)
	conf.SetDefault("server.disableReqLogs", false)
	conf.SetDefault("server.allowedOrigins", "http://localhost:3000")

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "kenamplan")
	conf.SetDefault("database.user", "kenamplan")
	conf.SetDefault("database.password", "kenamplan")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.maxOpenConns", 25)
	conf.SetDefault("database.maxIdleConns", 5)

	conf.SetDefault("rental.defaultPenaltyPerHour", "0")
	conf.SetDefault("rental.penaltyGracePeriod", time.Duration(0))
	conf.SetDefault("rental.timeZone", "Asia/Jakarta")

	conf.SetDefault("uploads.dir", "uploads")
	conf.SetDefault("uploads.baseURL", "/uploads")
	conf.SetDefault("uploads.maxSize", 5<<20)

	conf.SetDefault("rateLimit.authRate", 0.5)
	conf.SetDefault("rateLimit.authBurst", 5)
}

func fromViper(env string, conf *viper.Viper) *Config {
	c := &Config{
		Build:                     conf.GetString("build"),
		Env:                       env,
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		AppName:                   conf.GetString("appName"),
		SecretKey:                 conf.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(conf.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridAPIKey:            conf.GetString("sendgridAPIKey"),
		StorageEngine:             conf.GetString("storageEngine"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Port:                      conf.GetString("server.port"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ReadTimeout:               conf.GetDuration("server.readTimeout"),
			WriteTimeout:              conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            conf.GetBool("server.disableReqLogs"),
			AllowedOrigins:            splitList(conf.GetString("server.allowedOrigins")),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
			MaxOpenConns:  conf.GetInt("database.maxOpenConns"),
			MaxIdleConns:  conf.GetInt("database.maxIdleConns"),
		},
		Rental: RentalConfig{
			DefaultPenaltyPerHour: parseDecimal("rental.defaultPenaltyPerHour", conf.GetString("rental.defaultPenaltyPerHour")),
			PenaltyGracePeriod:    conf.GetDuration("rental.penaltyGracePeriod"),
			Location:              loadLocation(conf.GetString("rental.timeZone")),
		},
		Uploads: UploadsConfig{
			Dir:     conf.GetString("uploads.dir"),
			BaseURL: strings.TrimSuffix(conf.GetString("uploads.baseURL"), "/"),
			MaxSize: conf.GetInt64("uploads.maxSize"),
		},
		RateLimit: RateLimitConfig{
			AuthRate:  conf.GetFloat64("rateLimit.authRate"),
			AuthBurst: conf.GetInt("rateLimit.authBurst"),
		},
	}
	if c.TestMode {
		c.Debug = false
	}
	return c
}

// NewTestConfig returns a config suitable for unit tests: no files nor environment are read.
func NewTestConfig() *Config {
	conf := viper.New()
	setDefaults(conf)
	conf.Set("testMode", true)
	conf.Set("secretKey", "secret")
	conf.Set("server.disableReqLogs", true)
	conf.Set("storageEngine", "inmem")
	conf.Set("rental.timeZone", "UTC")
	conf.Set("rateLimit.authRate", 0)
	return fromViper("TEST", conf)
}

func splitList(s string) []string {
	var list []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func parseDecimal(key, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("config.%s: invalid decimal %s: %v", key, strconv.Quote(s), err)
	}
	return d
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("config.rental.timeZone: %v; falling back to UTC", err)
		return time.UTC
	}
	return loc
}
