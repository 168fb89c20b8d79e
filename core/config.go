package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env      string // DEV (default), TEST, QA, PROD
		Debug    bool
		TestMode bool
		Build    string
		WorkDir  string

		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail string

		PasswordResetTimeoutDelta time.Duration

		SendgridAPIKey string
		RollbarToken   string

		Server   ServerConfig
		Database DatabaseConfig
		Evidence EvidenceConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// EvidenceConfig bounds uploaded certificate evidence files.
	EvidenceConfig struct {
		Root        string // blob storage root directory
		MaxFileSize int64  // bytes
	}
)

func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and environment variables (prefixed by env name).
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Meridian")
	conf.SetDefault("secretKey", "w3&9n$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy)q5er")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("server.host", "")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "meridian")
	conf.SetDefault("database.user", "postgres")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("evidence.root", filepath.Join(Getwd(), "var", "evidence"))
	conf.SetDefault("evidence.maxFileSize", int64(5<<20)) // 5 MiB

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	c := &Config{
		Env:      env,
		Debug:    conf.GetBool("debug"),
		TestMode: env == "TEST",
		Build:    conf.GetString("build"),
		WorkDir:  Getwd(),

		AppName:          conf.GetString("appName"),
		SecretKey:        conf.GetString("secretKey"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: conf.GetString("defaultFromEmail"),

		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),

		SendgridAPIKey: conf.GetString("sendgridAPIKey"),
		RollbarToken:   conf.GetString("rollbarToken"),

		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			Port:                      conf.GetInt("server.port"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Evidence: EvidenceConfig{
			Root:        conf.GetString("evidence.root"),
			MaxFileSize: conf.GetInt64("evidence.maxFileSize"),
		},
	}

	if err := c.check(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return c
}

func (c *Config) check() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.AppName, "appName"),
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.Database.Engine, "database.engine"),
		vala.StringNotEmpty(c.Database.Name, "database.name"),
		vala.GreaterThan(c.Server.Port, 0, "server.port"),
		vala.GreaterThan(int(c.Evidence.MaxFileSize), 0, "evidence.maxFileSize"),
	).Check()
}
