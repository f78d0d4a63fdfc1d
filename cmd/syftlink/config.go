package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/syftlink/internal/storage"
	"github.com/openmined/syftlink/internal/sync"
	"github.com/openmined/syftlink/internal/utils"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "SYFTLINK"
	configFileName = "config.json"
	envFileName    = ".env"
	logFileName    = "syftlink.log"
)

var (
	home, _          = os.UserHomeDir()
	defaultConfigDir = filepath.Join(home, ".config", "syftlink")
)

type appConfig struct {
	ConfigDir   string
	ThreadCount int
	BatchSize   int
	LogLevel    string
	S3          storage.S3Config
}

func (c *appConfig) LogFilePath() string {
	return filepath.Join(c.ConfigDir, "logs", logFileName)
}

func (c *appConfig) Validate() error {
	if c.ThreadCount < 1 {
		return fmt.Errorf("%w: thread count must be at least 1, got %d", sync.ErrConfig, c.ThreadCount)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size must not be negative, got %d", sync.ErrConfig, c.BatchSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("config_dir", defaultConfigDir)
	v.SetDefault("thread_count", sync.DefaultThreadCount)
	v.SetDefault("batch_size", 0)
	v.SetDefault("log_level", "info")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// keys only set through the environment or config.json
	for _, key := range []string{"s3_endpoint", "s3_region", "s3_access_key", "s3_secret_key"} {
		_ = v.BindEnv(key)
	}
}

// loadConfig resolves the config directory, loads its .env and config.json and
// returns the merged settings. Flags win over env, env over files.
func loadConfig(v *viper.Viper) (*appConfig, error) {
	configDir, err := utils.ResolvePath(v.GetString("config_dir"))
	if err != nil {
		return nil, fmt.Errorf("%w: config dir: %w", sync.ErrConfig, err)
	}

	envFile := filepath.Join(configDir, envFileName)
	if utils.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("%w: load %s: %w", sync.ErrConfig, envFile, err)
		}
	}

	v.SetConfigFile(filepath.Join(configDir, configFileName))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %w", sync.ErrConfig, v.ConfigFileUsed(), err)
		}
	}

	cfg := &appConfig{
		ConfigDir:   configDir,
		ThreadCount: v.GetInt("thread_count"),
		BatchSize:   v.GetInt("batch_size"),
		LogLevel:    v.GetString("log_level"),
		S3: storage.S3Config{
			Endpoint:  v.GetString("s3_endpoint"),
			Region:    v.GetString("s3_region"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config loaded", "dir", cfg.ConfigDir, "threads", cfg.ThreadCount, "batchSize", cfg.BatchSize)
	return cfg, nil
}
