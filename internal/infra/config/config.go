package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env        string
	LogLevel   string
	Server     ServerConfig
	Retrieval  RetrievalConfig
	Weaviate   WeaviateConfig
	DB         DBConfig
	Embedder   EmbedderConfig
	Generation GenerationConfig
	Answer     AnswerConfig
	Guard      GuardConfig
	RateLimit  RateLimitConfig
	FAQ        FAQConfig
	OTel       OTelConfig
}

type ServerConfig struct {
	Port            string
	H2C             bool
	StaticDir       string
	ShutdownTimeout time.Duration
}

// RetrievalConfig selects the vector search backend: "weaviate" or "pgvector".
type RetrievalConfig struct {
	Backend string
	Timeout time.Duration
}

type WeaviateConfig struct {
	URL       string
	APIKey    string
	ClassName string
	// SearchMode is "near_text" or "hybrid".
	SearchMode string
	Alpha      float64
	// ClientVectors embeds hybrid queries with Ollama instead of the
	// server-side vectorizer.
	ClientVectors bool
	OpenAIKey     string
	CohereKey     string
}

// Headers returns the vectorizer API key headers Weaviate forwards to its
// embedding module.
func (w WeaviateConfig) Headers() map[string]string {
	h := map[string]string{}
	if w.OpenAIKey != "" {
		h["X-OpenAI-Api-Key"] = w.OpenAIKey
	}
	if w.CohereKey != "" {
		h["X-Cohere-Api-Key"] = w.CohereKey
	}
	return h
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int32
	MinConns int32
}

func (d DBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type EmbedderConfig struct {
	OllamaURL string
	Model     string
	Timeout   time.Duration
}

type GenerationConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

type AnswerConfig struct {
	Timeout        time.Duration
	HistoryEnabled bool
	DocsBaseURL    string

	// RewriteEnabled sends questions without a synonym hit to the chat model
	// for keyword rewriting before retrieval.
	RewriteEnabled bool
	RewriteTimeout time.Duration
}

type GuardConfig struct {
	// PatternsFile overrides the embedded pattern tables when set.
	PatternsFile string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type FAQConfig struct {
	CacheSize int
	CacheTTL  time.Duration
}

type OTelConfig struct {
	Enabled        bool
	Endpoint       string
	SampleRatio    float64
	ServiceVersion string
}

func Load() *Config {
	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			H2C:             getEnvBool("SERVER_H2C", false),
			StaticDir:       getEnv("STATIC_DIR", "static"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Retrieval: RetrievalConfig{
			Backend: getEnv("RETRIEVAL_BACKEND", "weaviate"),
			Timeout: getEnvDuration("RETRIEVAL_TIMEOUT", 20*time.Second),
		},
		Weaviate: WeaviateConfig{
			URL:           getEnv("WEAVIATE_URL", "http://weaviate:8080"),
			APIKey:        getSecret("WEAVIATE_API_KEY", "WEAVIATE_API_KEY_FILE", ""),
			ClassName:     getEnv("WEAVIATE_CLASS", "Document"),
			SearchMode:    getEnv("WEAVIATE_SEARCH_MODE", "near_text"),
			Alpha:         getEnvFloat64("WEAVIATE_HYBRID_ALPHA", 0.5),
			ClientVectors: getEnvBool("WEAVIATE_CLIENT_VECTORS", false),
			OpenAIKey:     getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
			CohereKey:     getSecret("COHERE_API_KEY", "COHERE_API_KEY_FILE", ""),
		},
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "qa-db"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "qa_user"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "qa_password"),
			Name:     getEnv("DB_NAME", "qa_db"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Embedder: EmbedderConfig{
			OllamaURL: getEnv("OLLAMA_URL", "http://ollama:11434"),
			Model:     getEnv("OLLAMA_EMBEDDING_MODEL", "bge-m3"),
			Timeout:   getEnvDuration("OLLAMA_TIMEOUT", 30*time.Second),
		},
		Generation: GenerationConfig{
			BaseURL:     getEnv("CHAT_API_BASE_URL", "https://api.openai.com/v1"),
			APIKey:      getEnvWithAlt("CHAT_API_KEY", "OPENAI_API_KEY", getSecret("CHAT_API_KEY", "CHAT_API_KEY_FILE", "")),
			Model:       getEnv("CHAT_MODEL", "gpt-4o-mini"),
			Temperature: getEnvFloat64("CHAT_TEMPERATURE", 0.3),
		},
		Answer: AnswerConfig{
			Timeout:        getEnvDuration("ANSWER_TIMEOUT", 120*time.Second),
			HistoryEnabled: getEnvBool("ANSWER_HISTORY_ENABLED", true),
			DocsBaseURL:    getEnv("DOCS_BASE_URL", "https://github.com/study-iitm/iitmdocs/blob/main/src"),
			RewriteEnabled: getEnvBool("QUERY_REWRITE_ENABLED", true),
			RewriteTimeout: getEnvDuration("QUERY_REWRITE_TIMEOUT", 10*time.Second),
		},
		Guard: GuardConfig{
			PatternsFile: getEnv("GUARD_PATTERNS_FILE", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RPS:     getEnvFloat64("RATE_LIMIT_RPS", 1),
			Burst:   getEnvInt("RATE_LIMIT_BURST", 10),
		},
		FAQ: FAQConfig{
			CacheSize: getEnvInt("FAQ_CACHE_SIZE", 128),
			CacheTTL:  getEnvDuration("FAQ_CACHE_TTL", 10*time.Minute),
		},
		OTel: OTelConfig{
			Enabled:        getEnvBool("OTEL_ENABLED", false),
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel-collector:4318"),
			SampleRatio:    getEnvFloat64("OTEL_TRACE_SAMPLE_RATIO", 0.1),
			ServiceVersion: getEnv("SERVICE_VERSION", "0.0.0"),
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Retrieval.Backend {
	case "weaviate", "pgvector":
	default:
		problems = append(problems, fmt.Sprintf("RETRIEVAL_BACKEND must be weaviate or pgvector, got %q", c.Retrieval.Backend))
	}
	switch c.Weaviate.SearchMode {
	case "near_text", "hybrid":
	default:
		problems = append(problems, fmt.Sprintf("WEAVIATE_SEARCH_MODE must be near_text or hybrid, got %q", c.Weaviate.SearchMode))
	}
	if c.Weaviate.Alpha < 0 || c.Weaviate.Alpha > 1 {
		problems = append(problems, "WEAVIATE_HYBRID_ALPHA must be within [0, 1]")
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		problems = append(problems, "OTEL_TRACE_SAMPLE_RATIO must be within [0, 1]")
	}
	if c.Answer.Timeout <= 0 {
		problems = append(problems, "ANSWER_TIMEOUT must be positive")
	}
	if c.Retrieval.Timeout <= 0 {
		problems = append(problems, "RETRIEVAL_TIMEOUT must be positive")
	}
	if c.Answer.RewriteEnabled && c.Answer.RewriteTimeout <= 0 {
		problems = append(problems, "QUERY_REWRITE_TIMEOUT must be positive")
	}
	if _, err := url.Parse(c.Answer.DocsBaseURL); err != nil || c.Answer.DocsBaseURL == "" {
		problems = append(problems, "DOCS_BASE_URL must be a valid URL")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvWithAlt(key, altKey, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if value, ok := os.LookupEnv(altKey); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
