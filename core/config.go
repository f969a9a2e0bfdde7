package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite file (or ":memory:")
	}

	ScormConfig struct {
		AutoCommitInterval time.Duration
		IdleTimeout        time.Duration
		SweepInterval      time.Duration
		CommitMaxRetries   int
		CommitMaxBackoff   time.Duration
	}

	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		SecretKey    string
		RollbarToken string
		WorkDir      string
		Server       ServerConfig
		Database     DatabaseConfig
		Scorm        ScormConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c DatabaseConfig) IsSQLite() bool {
	return c.Engine == "sqlite"
}

// DefaultScormConfig holds the engine timings used when nothing is configured.
func DefaultScormConfig() ScormConfig {
	return ScormConfig{
		AutoCommitInterval: 30 * time.Second,
		IdleTimeout:        30 * time.Minute,
		SweepInterval:      time.Minute,
		CommitMaxRetries:   5,
		CommitMaxBackoff:   5 * time.Minute,
	}
}

func NewConfig() *Config {
	conf := viper.New()
	scorm := DefaultScormConfig()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "FREE-LMS")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "q2n#d0-8xk@3v!scorm(5e$rte)t*7wz&h^m1yb+cu9lf")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "freelms")
	conf.SetDefault("database.user", "freelms")
	conf.SetDefault("database.password", "freelms")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.path", "freelms.db")

	conf.SetDefault("scorm.autoCommitInterval", scorm.AutoCommitInterval)
	conf.SetDefault("scorm.idleTimeout", scorm.IdleTimeout)
	conf.SetDefault("scorm.sweepInterval", scorm.SweepInterval)
	conf.SetDefault("scorm.commitMaxRetries", scorm.CommitMaxRetries)
	conf.SetDefault("scorm.commitMaxBackoff", scorm.CommitMaxBackoff)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	conf.AutomaticEnv()

	return &Config{
		Env:          env,
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:               conf.GetString("server.host"),
			Address:            conf.GetString("server.address"),
			DebugHost:          conf.GetString("server.debugHost"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
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
			Path:          conf.GetString("database.path"),
		},
		Scorm: ScormConfig{
			AutoCommitInterval: conf.GetDuration("scorm.autoCommitInterval"),
			IdleTimeout:        conf.GetDuration("scorm.idleTimeout"),
			SweepInterval:      conf.GetDuration("scorm.sweepInterval"),
			CommitMaxRetries:   conf.GetInt("scorm.commitMaxRetries"),
			CommitMaxBackoff:   conf.GetDuration("scorm.commitMaxBackoff"),
		},
	}
}
