package config

import (
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string `json:"port"`
	DBURL       string `json:"dbUrl"`     // пусто — хранилище в памяти
	TablesDir   string `json:"tablesDir"` // декларации таблиц (DSL)
	SourcesDir  string `json:"sourcesDir"`
	UploadsDir  string `json:"uploadsDir"` // пусто — загрузки не архивируются
	AutoMigrate bool   `json:"autoMigrate"`
	LogLevel    string `json:"logLevel"` // debug | info | warn | error
	Owner       string `json:"owner"`    // владелец таблиц из DSL

	// Загрузка источников
	FetchTimeout     time.Duration `json:"fetchTimeout"`
	FetchRetries     int           `json:"fetchRetries"`
	FetchConcurrency int           `json:"fetchConcurrency"`
}

func def() Config {
	return Config{
		Port:        "8080",
		DBURL:       "",
		TablesDir:   "tables",
		SourcesDir:  "sources",
		AutoMigrate: false,
		LogLevel:    "info",
		Owner:       "system",

		FetchTimeout:     30 * time.Second,
		FetchRetries:     3,
		FetchConcurrency: 4,
	}
}

// fileConfig — JSON-вид конфига: длительности строками ("30s").
type fileConfig struct {
	Config
	FetchTimeout string `json:"fetchTimeout"`
}

func loadJSON(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	fc := fileConfig{Config: base}
	if err := json.Unmarshal(b, &fc); err != nil {
		return base, err
	}
	c := fc.Config
	if fc.FetchTimeout != "" {
		d, err := time.ParseDuration(fc.FetchTimeout)
		if err != nil {
			return base, err
		}
		c.FetchTimeout = d
	}
	return c, nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		if b, ok := parseBool(v); ok {
			return b
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	if v, ok := os.LookupEnv(k); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func parseBool(v string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

// Load: умолчания -> JSON (если файл есть) -> .env и TOLA_* -> флаги из args.
func Load(jsonPath string, args []string) (Config, error) {
	// 1) флаг -config нужен раньше всего остального
	pre := flag.NewFlagSet("tolatables", flag.ContinueOnError)
	pre.SetOutput(discard{})
	configPath := pre.String("config", jsonPath, "Path to config JSON")
	_ = pre.Parse(filterFlag(args, "config"))

	cfg := def()

	// 2) JSON
	if st, err := os.Stat(*configPath); err == nil && !st.IsDir() {
		c2, err := loadJSON(*configPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = c2
	}

	// 3) .env не перекрывает уже заданное окружение
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}
	cfg.Port = getenv("TOLA_PORT", cfg.Port)
	cfg.DBURL = getenv("TOLA_DB_URL", cfg.DBURL)
	cfg.TablesDir = getenv("TOLA_TABLES_DIR", cfg.TablesDir)
	cfg.SourcesDir = getenv("TOLA_SOURCES_DIR", cfg.SourcesDir)
	cfg.UploadsDir = getenv("TOLA_UPLOADS_DIR", cfg.UploadsDir)
	cfg.AutoMigrate = getenvBool("TOLA_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.LogLevel = getenv("TOLA_LOG_LEVEL", cfg.LogLevel)
	cfg.Owner = getenv("TOLA_OWNER", cfg.Owner)
	cfg.FetchTimeout = getenvDuration("TOLA_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchRetries = getenvInt("TOLA_FETCH_RETRIES", cfg.FetchRetries)
	cfg.FetchConcurrency = getenvInt("TOLA_FETCH_CONCURRENCY", cfg.FetchConcurrency)

	// 4) флаги
	set := flag.NewFlagSet("tolatables", flag.ContinueOnError)
	set.String("config", *configPath, "Path to config JSON")
	port := set.String("port", cfg.Port, "HTTP port")
	db := set.String("db", cfg.DBURL, "Postgres URL (empty = in-memory)")
	tables := set.String("tables", cfg.TablesDir, "Path to table declarations directory")
	sources := set.String("sources", cfg.SourcesDir, "Path to source definitions directory")
	uploads := set.String("uploads", cfg.UploadsDir, "Directory for uploaded files (empty = do not keep)")
	auto := set.String("auto-migrate", strconv.FormatBool(cfg.AutoMigrate), "Create schema on start (true/false)")
	level := set.String("log-level", cfg.LogLevel, "Log level")
	owner := set.String("owner", cfg.Owner, "Owner of declared tables")
	timeout := set.Duration("fetch-timeout", cfg.FetchTimeout, "Source request timeout")
	retries := set.Int("fetch-retries", cfg.FetchRetries, "Source request retries")
	conc := set.Int("fetch-concurrency", cfg.FetchConcurrency, "Parallel page fetches")
	if err := set.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Port = strings.TrimSpace(*port)
	cfg.DBURL = strings.TrimSpace(*db)
	cfg.TablesDir = strings.TrimSpace(*tables)
	cfg.SourcesDir = strings.TrimSpace(*sources)
	cfg.UploadsDir = strings.TrimSpace(*uploads)
	if b, ok := parseBool(*auto); ok {
		cfg.AutoMigrate = b
	}
	cfg.LogLevel = strings.TrimSpace(*level)
	cfg.Owner = strings.TrimSpace(*owner)
	cfg.FetchTimeout = *timeout
	cfg.FetchRetries = *retries
	cfg.FetchConcurrency = *conc
	return cfg, nil
}

// filterFlag оставляет из args только -name/--name (с значением).
func filterFlag(args []string, name string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		a := strings.TrimLeft(args[i], "-")
		if a == name && i+1 < len(args) {
			out = append(out, "-"+name, args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(a, name+"=") && strings.HasPrefix(args[i], "-") {
			out = append(out, "-"+a)
		}
	}
	return out
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
