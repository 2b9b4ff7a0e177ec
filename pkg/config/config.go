package config

import (
	"strings"
	"time"

	"github.com/japaniel/lexireader/pkg/annotate"
)

// Config is the root application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data"`
	Panel  PanelConfig  `yaml:"panel"`
	Stream StreamConfig `yaml:"stream"`
	Ollama OllamaConfig `yaml:"ollama"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Ingest IngestConfig `yaml:"ingest"`
	Log    LogConfig    `yaml:"log"`
}

// DataConfig locates the corpus.
type DataConfig struct {
	// Dir holds the JSON index tables. When DBPath names an existing
	// database, it is preferred.
	Dir    string `yaml:"dir"     env:"LEXI_DATA_DIR" env-default:"data"`
	DBPath string `yaml:"db_path" env:"LEXI_DB_PATH"  env-default:"lexireader.db"`
}

// PanelConfig holds the frequency tiers and example caps of the word panel.
type PanelConfig struct {
	HighThreshold    int `yaml:"high_threshold"     env:"LEXI_PANEL_HIGH_THRESHOLD"     env-default:"20"`
	MediumThreshold  int `yaml:"medium_threshold"   env:"LEXI_PANEL_MEDIUM_THRESHOLD"   env-default:"5"`
	FamilyExampleCap int `yaml:"family_example_cap" env:"LEXI_PANEL_FAMILY_EXAMPLE_CAP" env-default:"8"`
	FormExampleCap   int `yaml:"form_example_cap"   env:"LEXI_PANEL_FORM_EXAMPLE_CAP"   env-default:"5"`
}

// Annotate converts the panel settings for the annotate package.
func (p PanelConfig) Annotate() annotate.Config {
	return annotate.Config{
		HighThreshold:    p.HighThreshold,
		MediumThreshold:  p.MediumThreshold,
		FamilyExampleCap: p.FamilyExampleCap,
		FormExampleCap:   p.FormExampleCap,
	}
}

// StreamConfig holds the reader side of the tutor chat.
type StreamConfig struct {
	ServerURL   string        `yaml:"server_url"   env:"LEXI_CHAT_URL"          env-default:"http://localhost:8000"`
	Model       string        `yaml:"model"        env:"LEXI_CHAT_MODEL"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"LEXI_STREAM_IDLE_TIMEOUT" env-default:"60s"`
}

// OllamaConfig holds the chat backend settings.
type OllamaConfig struct {
	// Host overrides OLLAMA_HOST when set.
	Host             string `yaml:"host"           env:"LEXI_OLLAMA_HOST"`
	DefaultModel     string `yaml:"default_model"  env:"LEXI_OLLAMA_MODEL"  env-default:"gpt-oss:20b"`
	AllowedModelsRaw string `yaml:"allowed_models" env:"LEXI_OLLAMA_MODELS" env-default:"gpt-oss:20b"`
}

// AllowedModels returns the comma-separated allowed models.
func (o OllamaConfig) AllowedModels() []string {
	var out []string
	for _, m := range strings.Split(o.AllowedModelsRaw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"LEXI_SERVER_ADDR"             env-default:":8000"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"LEXI_SERVER_READ_TIMEOUT"     env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LEXI_SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// RedisConfig enables the word context cache of the chat server. An empty
// Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"     env:"LEXI_REDIS_ADDR"`
	Password string        `yaml:"password" env:"LEXI_REDIS_PASSWORD"`
	DB       int           `yaml:"db"       env:"LEXI_REDIS_DB"  env-default:"0"`
	TTL      time.Duration `yaml:"ttl"      env:"LEXI_REDIS_TTL" env-default:"10m"`
}

// IngestConfig holds corpus building settings.
type IngestConfig struct {
	// Analyzer is "table" (lemma table lookup) or "kagome" (Japanese).
	Analyzer   string `yaml:"analyzer"    env:"LEXI_INGEST_ANALYZER"    env-default:"table"`
	LemmaTable string `yaml:"lemma_table" env:"LEXI_INGEST_LEMMA_TABLE"`
	// LemmaTableURL is downloaded to LemmaTable when the file is missing.
	LemmaTableURL string `yaml:"lemma_table_url" env:"LEXI_INGEST_LEMMA_TABLE_URL"`
	// LemmaFirst reads "lemma<TAB>form" lines instead of "word<TAB>lemma".
	LemmaFirst bool   `yaml:"lemma_first" env:"LEXI_INGEST_LEMMA_FIRST" env-default:"false"`
	Mode       string `yaml:"mode"        env:"LEXI_INGEST_MODE"        env-default:"paragraph"`
	Workers    int    `yaml:"workers"     env:"LEXI_INGEST_WORKERS"     env-default:"4"`
	BatchSize  int    `yaml:"batch_size"  env:"LEXI_INGEST_BATCH_SIZE"  env-default:"50"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
