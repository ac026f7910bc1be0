package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the bot.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Telegram    TelegramConfig            `json:"telegram"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Events      EventsConfig              `json:"events"`
	API         APIConfig                 `json:"api"`
}

type BasicConfig struct {
	Environment string `json:"environment"`
	LogFilePath string `json:"log_file_path"`
	DBType      string `json:"db_type"`

	// Seconds the bot waits for an answer to a question.
	AskTimeout int `json:"ask_timeout"`
	// Minutes a folder selection keyboard stays valid.
	SelectionTTL int `json:"selection_ttl"`
	// Seconds between sweeps of expired selections.
	SelectionSweep int `json:"selection_sweep"`

	MinWorkers        int `json:"min_workers"`
	MaxWorkers        int `json:"max_workers"`
	QueueSize         int `json:"queue_size"`
	WorkerIdleTimeout int `json:"worker_idle_timeout"` // minutes
}

type TelegramConfig struct {
	BotToken       string  `json:"bot_token"`
	AdminIDs       []int64 `json:"admin_ids"`
	StorageChannel int64   `json:"storage_channel"`
	PollTimeout    int     `json:"poll_timeout"`
	APIEndpoint    string  `json:"api_endpoint"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type EventsConfig struct {
	NatsURL string `json:"nats_url"`
	Stream  string `json:"stream"`
}

type APIConfig struct {
	Address string `json:"address"`
	Key     string `json:"key"`
}

// Load reads configuration from the provided path (defaults to config.json), then
// applies .env and environment overrides. A missing file is not an error when the
// environment carries the required values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("Note: config %s not found, using defaults and environment", absPath)
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if sqlite, ok := cfg.Databases["sqlite3"]; ok && sqlite.DSN != "" && sqlite.DSN != ":memory:" &&
		!strings.HasPrefix(sqlite.DSN, "file:") && !filepath.IsAbs(sqlite.DSN) {
		sqlite.DSN = filepath.Join(filepath.Dir(absPath), sqlite.DSN)
		cfg.Databases["sqlite3"] = sqlite
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			Environment:       "development",
			LogFilePath:       "logs/drivebot.log",
			DBType:            "sqlite3",
			AskTimeout:        60,
			SelectionTTL:      5,
			SelectionSweep:    60,
			MinWorkers:        2,
			MaxWorkers:        8,
			QueueSize:         64,
			WorkerIdleTimeout: 5,
		},
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Databases: map[string]DatabaseConfig{
			"sqlite3": {DSN: "data/drive.db"},
		},
		Redis: RedisConfig{
			Host: "127.0.0.1",
			Port: 6379,
		},
		Events: EventsConfig{
			Stream: "DRIVEBOT",
		},
	}
}

// Validate rejects configurations the bot cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return errors.New("telegram bot_token must be configured")
	}
	if len(c.Telegram.AdminIDs) == 0 {
		return errors.New("telegram admin_ids must be configured")
	}
	if c.Telegram.StorageChannel == 0 {
		return errors.New("telegram storage_channel must be configured")
	}
	if _, ok := c.Databases[c.BasicConfig.DBType]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.DBType)
	}
	return nil
}

// IsProduction reports whether the bot runs with production logging.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.BasicConfig.Environment, "production")
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.BotToken = v
	}
	if v, ok := os.LookupEnv("TELEGRAM_ADMIN_IDS"); ok {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("TELEGRAM_ADMIN_IDS: %w", err)
		}
		c.Telegram.AdminIDs = ids
	}
	if v, ok := os.LookupEnv("STORAGE_CHANNEL"); ok {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("STORAGE_CHANNEL: %w", err)
		}
		c.Telegram.StorageChannel = id
	}
	if v, ok := os.LookupEnv("DRIVEBOT_DB"); ok && v != "" {
		c.BasicConfig.DBType = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v != "" {
		host, port, found := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v, ok := os.LookupEnv("NATS_URL"); ok {
		c.Events.NatsURL = v
	}
	if v, ok := os.LookupEnv("ADMIN_API_KEY"); ok {
		c.API.Key = v
	}
	if v, ok := os.LookupEnv("API_ADDRESS"); ok {
		c.API.Address = v
	}
	if v, ok := os.LookupEnv("GO_ENV"); ok && v != "" {
		c.BasicConfig.Environment = v
	}
	if v, ok := os.LookupEnv("LOG_FILE_PATH"); ok && v != "" {
		c.BasicConfig.LogFilePath = v
	}
	return nil
}

// ParseIDs parses a comma separated list of chat or user ids.
func ParseIDs(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		v := strings.TrimSpace(part)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", v, err)
		}
		out = append(out, id)
	}
	return out, nil
}
