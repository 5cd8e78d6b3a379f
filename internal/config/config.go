// Package config loads bookcat settings from YAML, .env and BOOKCAT_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when Load gets an empty path.
const DefaultPath = "config.yaml"

// Duration accepts Go duration strings such as "15m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type JWT struct {
	PrivateKeyPath string   `yaml:"privateKeyPath"`
	PublicKeyPath  string   `yaml:"publicKeyPath"`
	AccessTTL      Duration `yaml:"accessTTL"`
	RefreshTTL     Duration `yaml:"refreshTTL"`
	Issuer         string   `yaml:"issuer"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type RateLimit struct {
	AuthPerMinute int `yaml:"authPerMinute"`
}

type Upload struct {
	MaxBytes int64 `yaml:"maxBytes"`
}

type Import struct {
	DefaultBatchSize int `yaml:"defaultBatchSize"`
}

// Config is the full service configuration.
type Config struct {
	Addr        string    `yaml:"addr"`
	GRPCAddr    string    `yaml:"grpcAddr"`
	LogLevel    string    `yaml:"logLevel"`
	DatabaseURL string    `yaml:"databaseURL"`
	JWT         JWT       `yaml:"jwt"`
	Minio       Minio     `yaml:"minio"`
	Redis       Redis     `yaml:"redis"`
	RateLimit   RateLimit `yaml:"rateLimit"`
	Upload      Upload    `yaml:"upload"`
	Import      Import    `yaml:"import"`
}

// Default returns the settings used for anything the file and env leave out.
func Default() Config {
	return Config{
		Addr:     ":8080",
		GRPCAddr: ":9090",
		LogLevel: "info",
		JWT: JWT{
			PrivateKeyPath: "certs/jwt-private.pem",
			PublicKeyPath:  "certs/jwt-public.pem",
			AccessTTL:      Duration(15 * time.Minute),
			RefreshTTL:     Duration(720 * time.Hour),
			Issuer:         "bookcat",
		},
		Minio:     Minio{Bucket: "books"},
		RateLimit: RateLimit{AuthPerMinute: 5},
		Upload:    Upload{MaxBytes: 20 << 20},
		Import:    Import{DefaultBatchSize: 100},
	}
}

// Load reads path (DefaultPath when empty) over Default, then applies .env
// and environment overrides. A missing default file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"BOOKCAT_ADDR":                 &cfg.Addr,
		"BOOKCAT_GRPC_ADDR":            &cfg.GRPCAddr,
		"BOOKCAT_LOG_LEVEL":            &cfg.LogLevel,
		"BOOKCAT_DATABASE_URL":         &cfg.DatabaseURL,
		"BOOKCAT_JWT_PRIVATE_KEY_PATH": &cfg.JWT.PrivateKeyPath,
		"BOOKCAT_JWT_PUBLIC_KEY_PATH":  &cfg.JWT.PublicKeyPath,
		"BOOKCAT_JWT_ISSUER":           &cfg.JWT.Issuer,
		"BOOKCAT_MINIO_ENDPOINT":       &cfg.Minio.Endpoint,
		"BOOKCAT_MINIO_ACCESS_KEY":     &cfg.Minio.AccessKey,
		"BOOKCAT_MINIO_SECRET_KEY":     &cfg.Minio.SecretKey,
		"BOOKCAT_MINIO_BUCKET":         &cfg.Minio.Bucket,
		"BOOKCAT_REDIS_ADDR":           &cfg.Redis.Addr,
		"BOOKCAT_REDIS_PASSWORD":       &cfg.Redis.Password,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("BOOKCAT_MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BOOKCAT_MINIO_USE_SSL: %w", err)
		}
		cfg.Minio.UseSSL = b
	}
	for key, dst := range map[string]*Duration{
		"BOOKCAT_JWT_ACCESS_TTL":  &cfg.JWT.AccessTTL,
		"BOOKCAT_JWT_REFRESH_TTL": &cfg.JWT.RefreshTTL,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = Duration(d)
		}
	}
	for key, dst := range map[string]*int{
		"BOOKCAT_RATE_LIMIT_AUTH_PER_MINUTE": &cfg.RateLimit.AuthPerMinute,
		"BOOKCAT_IMPORT_BATCH_SIZE":          &cfg.Import.DefaultBatchSize,
	} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("BOOKCAT_UPLOAD_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: BOOKCAT_UPLOAD_MAX_BYTES: %w", err)
		}
		cfg.Upload.MaxBytes = n
	}
	return nil
}

// Validate reports the first missing or out of range setting.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: addr is required")
	case c.DatabaseURL == "":
		return errors.New("config: databaseURL is required (set in config.yaml or BOOKCAT_DATABASE_URL)")
	case c.JWT.PublicKeyPath == "":
		return errors.New("config: jwt.publicKeyPath is required")
	case c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0:
		return errors.New("config: jwt token lifetimes must be positive")
	case c.RateLimit.AuthPerMinute <= 0:
		return errors.New("config: rateLimit.authPerMinute must be positive")
	case c.Upload.MaxBytes <= 0:
		return errors.New("config: upload.maxBytes must be positive")
	case c.Import.DefaultBatchSize <= 0:
		return errors.New("config: import.defaultBatchSize must be positive")
	}
	if c.Minio.Endpoint != "" && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "" || c.Minio.Bucket == "") {
		return errors.New("config: minio accessKey, secretKey and bucket are required with an endpoint")
	}
	return nil
}
