// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then SKILLBARTER_* environment
// variables (a .env file in the working directory is read first), then an
// optional YAML file whose keys override everything before it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InsecureJWTSecret is the development default. Validate rejects it outside
// development.
const InsecureJWTSecret = "change-me-in-production"

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	Env            string        `yaml:"env"`
	LogLevel       string        `yaml:"log_level"`
	BaseURL        string        `yaml:"base_url"`
	TemplateDir    string        `yaml:"template_dir"`
	StaticDir      string        `yaml:"static_dir"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenDuration  time.Duration `yaml:"token_duration"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Store   StoreConfig  `yaml:"store"`
	Workers WorkerConfig `yaml:"workers"`
	Images  ImageConfig  `yaml:"images"`
	Maps    MapsConfig   `yaml:"maps"`
	SMTP    SMTPConfig   `yaml:"smtp"`
	GitHub  GitHubConfig `yaml:"github"`
}

type StoreConfig struct {
	Kind          string `yaml:"kind"`
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type WorkerConfig struct {
	Count       int           `yaml:"count"`
	QueueSize   int           `yaml:"queue_size"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// ImageConfig selects Cloudinary when CloudName is set, local disk otherwise.
type ImageConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
	UploadDir string `yaml:"upload_dir"`
}

// MapsConfig enables Google reverse geocoding when APIKey is set.
type MapsConfig struct {
	APIKey string `yaml:"api_key"`
}

// SMTPConfig enables real mail when Host is set.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	SSL      bool   `yaml:"ssl"`
}

// GitHubConfig enables GitHub sign-in when ClientID is set.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		Env:            "development",
		LogLevel:       "debug",
		BaseURL:        "http://localhost:8080",
		TemplateDir:    "web/templates",
		StaticDir:      "web/static",
		JWTSecret:      InsecureJWTSecret,
		TokenDuration:  time.Hour,
		RequestTimeout: 15 * time.Second,
		Store: StoreConfig{
			Kind:          StoreSQLite,
			SQLitePath:    "data/skillbarter.db",
			MongoDatabase: "skillbarter",
		},
		Workers: WorkerConfig{
			Count:       4,
			QueueSize:   256,
			TaskTimeout: 30 * time.Second,
		},
		Images: ImageConfig{
			Folder:    "skillbarter",
			UploadDir: "data/uploads",
		},
		SMTP: SMTPConfig{
			Port: 465,
			From: "noreply@skillbarter.local",
			SSL:  true,
		},
	}
}

// LoadConfig builds the configuration. path may be empty.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: opening %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/auth/github/callback"
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SKILLBARTER_ADDR":                 &c.Addr,
		"SKILLBARTER_ENV":                  &c.Env,
		"SKILLBARTER_LOG_LEVEL":            &c.LogLevel,
		"SKILLBARTER_BASE_URL":             &c.BaseURL,
		"SKILLBARTER_TEMPLATE_DIR":         &c.TemplateDir,
		"SKILLBARTER_STATIC_DIR":           &c.StaticDir,
		"SKILLBARTER_JWT_SECRET":           &c.JWTSecret,
		"SKILLBARTER_STORE":                &c.Store.Kind,
		"SKILLBARTER_SQLITE_PATH":          &c.Store.SQLitePath,
		"SKILLBARTER_MONGO_URI":            &c.Store.MongoURI,
		"SKILLBARTER_MONGO_DATABASE":       &c.Store.MongoDatabase,
		"SKILLBARTER_CLOUDINARY_NAME":      &c.Images.CloudName,
		"SKILLBARTER_CLOUDINARY_KEY":       &c.Images.APIKey,
		"SKILLBARTER_CLOUDINARY_SECRET":    &c.Images.APISecret,
		"SKILLBARTER_CLOUDINARY_FOLDER":    &c.Images.Folder,
		"SKILLBARTER_UPLOAD_DIR":           &c.Images.UploadDir,
		"SKILLBARTER_MAPS_API_KEY":         &c.Maps.APIKey,
		"SKILLBARTER_SMTP_HOST":            &c.SMTP.Host,
		"SKILLBARTER_SMTP_USERNAME":        &c.SMTP.Username,
		"SKILLBARTER_SMTP_PASSWORD":        &c.SMTP.Password,
		"SKILLBARTER_SMTP_FROM":            &c.SMTP.From,
		"SKILLBARTER_GITHUB_CLIENT_ID":     &c.GitHub.ClientID,
		"SKILLBARTER_GITHUB_CLIENT_SECRET": &c.GitHub.ClientSecret,
		"SKILLBARTER_GITHUB_CALLBACK_URL":  &c.GitHub.CallbackURL,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"SKILLBARTER_TOKEN_DURATION":  &c.TokenDuration,
		"SKILLBARTER_REQUEST_TIMEOUT": &c.RequestTimeout,
		"SKILLBARTER_TASK_TIMEOUT":    &c.Workers.TaskTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"SKILLBARTER_WORKERS":    &c.Workers.Count,
		"SKILLBARTER_QUEUE_SIZE": &c.Workers.QueueSize,
		"SKILLBARTER_SMTP_PORT":  &c.SMTP.Port,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("SKILLBARTER_SMTP_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SKILLBARTER_SMTP_SSL: %w", err)
		}
		c.SMTP.SSL = b
	}
	return nil
}

// Development reports whether the server runs in development mode.
func (c *Config) Development() bool {
	return c.Env == "" || c.Env == "development"
}

// Validate rejects configurations the server can't run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.JWTSecret == InsecureJWTSecret && !c.Development() {
		errs = append(errs, errors.New("jwt_secret must be changed outside development"))
	}
	if c.TokenDuration <= 0 {
		errs = append(errs, errors.New("token_duration must be positive"))
	}
	switch c.Store.Kind {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite store"))
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo store"))
		}
		if c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("store.mongo_database is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if c.Images.CloudName != "" && (c.Images.APIKey == "" || c.Images.APISecret == "") {
		errs = append(errs, errors.New("images.api_key and images.api_secret are required with images.cloud_name"))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp.from is required with smtp.host"))
	}
	if c.GitHub.ClientID != "" && c.GitHub.ClientSecret == "" {
		errs = append(errs, errors.New("github.client_secret is required with github.client_id"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
