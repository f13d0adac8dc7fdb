package config

import (
	env_utils "debuglens/internal/util/env"
	"debuglens/internal/util/logger"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

var log = logger.GetLogger()

type EnvVariables struct {
	EnvMode         env_utils.EnvMode `env:"ENV_MODE"                        required:"true"`
	BackendRootPath string            `env:"BACKEND_ROOT_PATH"`
	HTTPPort        string            `env:"HTTP_PORT"                       env-default:"4010"`

	// opensearch
	OpenSearchURL                string `env:"OPENSEARCH_URL"                  required:"true"`
	OpenSearchAPIPort            string `env:"OPENSEARCH_API_PORT"             required:"true"`
	OpenSearchUsername           string `env:"OPENSEARCH_USERNAME"`
	OpenSearchPassword           string `env:"OPENSEARCH_PASSWORD"`
	OpenSearchIndex              string `env:"OPENSEARCH_INDEX"                env-default:"telescope"`
	OpenSearchIndexSuffixFormat  string `env:"OPENSEARCH_INDEX_SUFFIX_FORMAT"`
	OpenSearchInsecureSkipVerify bool   `env:"OPENSEARCH_INSECURE_SKIP_VERIFY" env-default:"false"`
	OpenSearchCompressRequests   bool   `env:"OPENSEARCH_COMPRESS_REQUESTS"    env-default:"false"`
	OpenSearchBulkRefresh        string `env:"OPENSEARCH_BULK_REFRESH"         env-default:"wait_for"`
	OpenSearchShards             int    `env:"OPENSEARCH_SHARDS"               env-default:"1"`
	OpenSearchReplicas           int    `env:"OPENSEARCH_REPLICAS"             env-default:"0"`

	// cache, only needed when family locking is enabled
	ValkeyHost        string `env:"VALKEY_HOST"`
	ValkeyPort        string `env:"VALKEY_PORT"         env-default:"6379"`
	ValkeyUsername    string `env:"VALKEY_USERNAME"`
	ValkeyPassword    string `env:"VALKEY_PASSWORD"`
	ValkeyIsSsl       bool   `env:"VALKEY_IS_SSL"       env-default:"false"`
	FamilyLockEnabled bool   `env:"FAMILY_LOCK_ENABLED" env-default:"false"`

	// pruning
	PruneRetentionHours int  `env:"PRUNE_RETENTION_HOURS" env-default:"0"`
	PruneKeepExceptions bool `env:"PRUNE_KEEP_EXCEPTIONS" env-default:"false"`

	StoreRateLimitRPS int `env:"STORE_RATE_LIMIT_RPS" env-default:"200"`
}

var (
	env  EnvVariables
	once sync.Once
)

func GetEnv() EnvVariables {
	once.Do(loadEnvVariables)
	return env
}

func (e EnvVariables) PruneRetention() time.Duration {
	return time.Duration(e.PruneRetentionHours) * time.Hour
}

func loadEnvVariables() {
	cwd, err := os.Getwd()
	if err != nil {
		log.Warn("could not get current working directory", "error", err)
		cwd = "."
	}

	backendRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(backendRoot, "go.mod")); err == nil {
			break
		}

		parent := filepath.Dir(backendRoot)
		if parent == backendRoot {
			break
		}

		backendRoot = parent
	}

	envPaths := []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(backendRoot, ".env"),
	}

	var loaded bool
	for _, path := range envPaths {
		log.Info("Trying to load .env", "path", path)
		if err := godotenv.Load(path); err == nil {
			log.Info("Successfully loaded .env", "path", path)
			loaded = true
			break
		}
	}

	// containers usually pass the variables directly
	if !loaded {
		log.Warn("No .env file found, relying on process environment")
	}

	err = cleanenv.ReadEnv(&env)
	if err != nil {
		log.Error("Configuration could not be loaded", "error", err)
		os.Exit(1)
	}

	if env.BackendRootPath == "" {
		env.BackendRootPath = backendRoot
	}

	if !env.EnvMode.IsValid() {
		log.Error("ENV_MODE is invalid", "mode", env.EnvMode)
		os.Exit(1)
	}
	log.Info("ENV_MODE loaded", "mode", env.EnvMode)

	// OpenSearch
	if env.OpenSearchURL == "" {
		log.Error("OPENSEARCH_URL is empty")
		os.Exit(1)
	}
	if env.OpenSearchAPIPort == "" {
		log.Error("OPENSEARCH_API_PORT is empty")
		os.Exit(1)
	}
	if env.OpenSearchIndex == "" {
		log.Error("OPENSEARCH_INDEX is empty")
		os.Exit(1)
	}
	switch env.OpenSearchBulkRefresh {
	case "", "false", "true", "wait_for":
	default:
		log.Error("OPENSEARCH_BULK_REFRESH is invalid", "value", env.OpenSearchBulkRefresh)
		os.Exit(1)
	}

	// Valkey
	if env.FamilyLockEnabled && env.ValkeyHost == "" {
		log.Error("VALKEY_HOST is empty but FAMILY_LOCK_ENABLED is set")
		os.Exit(1)
	}

	if env.PruneRetentionHours < 0 {
		log.Error("PRUNE_RETENTION_HOURS must not be negative", "value", env.PruneRetentionHours)
		os.Exit(1)
	}

	log.Info("Environment variables loaded successfully!")
}
