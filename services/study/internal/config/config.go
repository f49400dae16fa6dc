package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "config.yaml"

const (
	StoreBackendPostgres = "postgres"
	StoreBackendSupabase = "supabase"
	StoreBackendMemory   = "memory"

	ObjectBackendMinio    = "minio"
	ObjectBackendSupabase = "supabase"
	ObjectBackendMemory   = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreBackend  string `yaml:"storeBackend"`
	ObjectBackend string `yaml:"objectBackend"`
	DatabaseURL   string `yaml:"databaseURL"`

	SupabaseURL        string `yaml:"supabaseURL"`
	SupabaseServiceKey string `yaml:"supabaseServiceKey"`
	SupabaseBucket     string `yaml:"supabaseBucket"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AIGatewayURL string `yaml:"aiGatewayURL"`
	AIAPIKey     string `yaml:"aiAPIKey"`
	AIModel      string `yaml:"aiModel"`

	JWTSecret   string `yaml:"jwtSecret"`
	JWKSURL     string `yaml:"jwksURL"`
	JWTIssuer   string `yaml:"jwtIssuer"`
	JWTAudience string `yaml:"jwtAudience"`
	JWTLeeway   string `yaml:"jwtLeeway"`

	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	RateLimitPerMinute int    `yaml:"rateLimitPerMinute"`
	QueueConcurrency   int    `yaml:"queueConcurrency"`
	QueueMaxRetries    int    `yaml:"queueMaxRetries"`

	HistoryLimit   int      `yaml:"historyLimit"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// PathFromEnv returns STUDY_CONFIG when set, otherwise ConfigPath.
func PathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("STUDY_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString(&cfg.Port, "STUDY_PORT")
	setString(&cfg.LogLevel, "STUDY_LOG_LEVEL")
	setString(&cfg.StoreBackend, "STUDY_STORE_BACKEND")
	setString(&cfg.ObjectBackend, "STUDY_OBJECT_BACKEND")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SupabaseURL, "SUPABASE_URL")
	setString(&cfg.SupabaseServiceKey, "SUPABASE_SERVICE_ROLE_KEY")
	setString(&cfg.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	setString(&cfg.AIAPIKey, "LOVABLE_API_KEY")
	setString(&cfg.AIGatewayURL, "STUDY_AI_GATEWAY_URL")
	setString(&cfg.AIModel, "STUDY_AI_MODEL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RateLimitPerMinute, "STUDY_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.QueueConcurrency, "STUDY_QUEUE_CONCURRENCY")
	setInt(&cfg.HistoryLimit, "STUDY_HISTORY_LIMIT")
	if v := os.Getenv("STUDY_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("STUDY_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreBackendPostgres
	}
	if cfg.ObjectBackend == "" {
		cfg.ObjectBackend = ObjectBackendMinio
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 20
	}
	if cfg.QueueConcurrency == 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.QueueMaxRetries == 0 {
		cfg.QueueMaxRetries = 3
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 20
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or STUDY_PORT)")
	}
	switch cfg.StoreBackend {
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case StoreBackendSupabase:
		if err := requireSupabase(cfg); err != nil {
			return err
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("config: unknown storeBackend %q (postgres, supabase or memory)", cfg.StoreBackend)
	}
	switch cfg.ObjectBackend {
	case ObjectBackendMinio:
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required (set in config.yaml or MINIO_ACCESS_KEY)")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required (set in config.yaml or MINIO_SECRET_KEY)")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required (set in config.yaml or MINIO_BUCKET)")
		}
	case ObjectBackendSupabase:
		if err := requireSupabase(cfg); err != nil {
			return err
		}
	case ObjectBackendMemory:
	default:
		return fmt.Errorf("config: unknown objectBackend %q (minio, supabase or memory)", cfg.ObjectBackend)
	}
	if cfg.AIAPIKey == "" {
		return errors.New("config: aiAPIKey is required (set in config.yaml or LOVABLE_API_KEY)")
	}
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return errors.New("config: jwtSecret or jwksURL is required (set in config.yaml or SUPABASE_JWT_SECRET)")
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("config: rateLimitPerMinute must be >= 0")
	}
	if cfg.QueueConcurrency < 1 {
		return errors.New("config: queueConcurrency must be >= 1")
	}
	if cfg.HistoryLimit < 1 {
		return errors.New("config: historyLimit must be >= 1")
	}
	if cfg.MaxUploadBytes < 1 {
		return errors.New("config: maxUploadBytes must be >= 1")
	}
	return nil
}

func requireSupabase(cfg FileConfig) error {
	if cfg.SupabaseURL == "" {
		return errors.New("config: supabaseURL is required (set in config.yaml or SUPABASE_URL)")
	}
	if cfg.SupabaseServiceKey == "" {
		return errors.New("config: supabaseServiceKey is required (set in config.yaml or SUPABASE_SERVICE_ROLE_KEY)")
	}
	return nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
