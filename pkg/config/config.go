package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Neo4j      Neo4jConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
	Family     FamilyConfig
	Scoring    ScoringConfig
	Upload     UploadConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	RateLimit      int
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	NarrativeTTL int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	Enabled     bool
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

// ColumnConfig holds positional column roles. Headers in the source sheets
// are unreliable, so nothing is looked up by header name.
type ColumnConfig struct {
	PolicyID      int
	PrimaryType   int
	SecondaryType int
	Premium       int
	Value         int
}

type ExtractionConfig struct {
	SkipRows     int
	Columns      ColumnConfig
	DefaultLabel string
	LabelAliases map[string][]string
}

type FamilyConfig struct {
	KnownNames        []string
	MemberPlaceholder string
	FallbackName      string
	NameFormat        string
}

type ScoringConfig struct {
	PremiumRate     float64
	CoverageCatalog []string
}

type UploadConfig struct {
	MaxFiles     int
	MaxFileBytes int
	AllowedExts  []string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/family-profiler")

	v.SetEnvPrefix("FAMILY_PROFILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Extraction.SkipRows < 0 {
		return fmt.Errorf("extraction.skipRows must be >= 0, got %d", c.Extraction.SkipRows)
	}
	cols := c.Extraction.Columns
	for name, idx := range map[string]int{
		"policyId":      cols.PolicyID,
		"primaryType":   cols.PrimaryType,
		"secondaryType": cols.SecondaryType,
		"premium":       cols.Premium,
	} {
		if idx < 0 {
			return fmt.Errorf("extraction.columns.%s must be >= 0, got %d", name, idx)
		}
	}
	if c.Scoring.PremiumRate <= 0 {
		return fmt.Errorf("scoring.premiumRate must be > 0, got %v", c.Scoring.PremiumRate)
	}
	if c.Family.MemberPlaceholder == "" || c.Family.FallbackName == "" {
		return fmt.Errorf("family.memberPlaceholder and family.fallbackName are required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 52428800)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.rateLimit", 30)
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/family_profiles.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.narrativeTTL", 86400)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 1200)
	v.SetDefault("llm.timeoutSec", 10)

	v.SetDefault("extraction.skipRows", 5)
	v.SetDefault("extraction.columns.policyId", 0)
	v.SetDefault("extraction.columns.primaryType", 1)
	v.SetDefault("extraction.columns.secondaryType", 2)
	v.SetDefault("extraction.columns.premium", 7)
	v.SetDefault("extraction.columns.value", -1)
	v.SetDefault("extraction.defaultLabel", "general")
	v.SetDefault("extraction.labelAliases", map[string][]string{
		"life":       {"life", "חיים", "ריסק"},
		"health":     {"health", "בריאות"},
		"auto":       {"auto", "car", "רכב"},
		"home":       {"home", "property", "דירה", "בית", "מבנה"},
		"liability":  {"liability", "אחריות"},
		"disability": {"disability", "אובדן כושר", "נכות"},
	})

	v.SetDefault("family.knownNames", []string{"הר", "כהן", "לוי", "גולדברג", "ברק", "שפירא", "מור", "דוד", "לוגסי", "מזרחי"})
	v.SetDefault("family.memberPlaceholder", "family member")
	v.SetDefault("family.fallbackName", "Family")
	v.SetDefault("family.nameFormat", "%s family")

	v.SetDefault("scoring.premiumRate", 0.02)
	v.SetDefault("scoring.coverageCatalog", []string{"life", "health", "auto", "home", "liability", "disability"})

	v.SetDefault("upload.maxFiles", 20)
	v.SetDefault("upload.maxFileBytes", 10485760)
	v.SetDefault("upload.allowedExts", []string{".xlsx"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
