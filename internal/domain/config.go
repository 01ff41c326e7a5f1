package domain

import "time"

// Config is the complete application configuration, populated by viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Guidelines GuidelinesConfig `mapstructure:"guidelines"`
	Dosing     DosingConfig     `mapstructure:"dosing"`
	Evidence   EvidenceConfig   `mapstructure:"evidence"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Feedback   FeedbackConfig   `mapstructure:"feedback"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// GuidelinesConfig locates the on-disk corpus.
type GuidelinesConfig struct {
	Dir string `mapstructure:"dir"`
	// FailOnViolations aborts startup when cross-reference validation
	// reports problems instead of just surfacing them in diagnostics.
	FailOnViolations bool `mapstructure:"fail_on_violations"`
}

// DosingConfig gates per-drug dosing behavior.
type DosingConfig struct {
	// WeightBasedDrugs lists drug ids dosed in mg/kg (glycopeptides today).
	// Any future pharmacokinetic expansion belongs behind this same flag.
	WeightBasedDrugs []string `mapstructure:"weight_based_drugs"`
}

// EvidenceConfig controls the optional tiered evidence search.
type EvidenceConfig struct {
	Enabled      bool             `mapstructure:"enabled"`
	MaxInFlight  int              `mapstructure:"max_in_flight"`
	QueryTimeout time.Duration    `mapstructure:"query_timeout"`
	Reputable    []SourceConfig   `mapstructure:"reputable"`
	Broader      []SourceConfig   `mapstructure:"broader"`
	Confidence   ConfidenceConfig `mapstructure:"confidence"`
}

// SourceConfig describes one external evidence source.
type SourceConfig struct {
	Name      string `mapstructure:"name"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	RateLimit int    `mapstructure:"rate_limit"` // requests per second
}

// ConfidenceConfig holds the structural confidence deduction weights.
type ConfidenceConfig struct {
	Base                float64 `mapstructure:"base"`
	SubcategoryFallback float64 `mapstructure:"subcategory_fallback"`
	PregnancyFiltered   float64 `mapstructure:"pregnancy_filtered"`
	SevereAllergy       float64 `mapstructure:"severe_allergy"`
	AllergyInferred     float64 `mapstructure:"allergy_inferred"`
	RenalEdgeTier       float64 `mapstructure:"renal_edge_tier"`
	WeightMissing       float64 `mapstructure:"weight_missing"`
	ExtraWarnings       float64 `mapstructure:"extra_warnings"`
	Floor               float64 `mapstructure:"floor"`
}

// AuditConfig controls the JSONL audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// FeedbackConfig selects the feedback store backend.
type FeedbackConfig struct {
	Backend    string `mapstructure:"backend"` // sqlite or postgres
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig holds PostgreSQL settings for the feedback store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig holds Redis settings for the evidence cache.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	// LocalSize bounds the in-process LRU used when Redis is absent.
	LocalSize int `mapstructure:"local_size"`
}

// LoggingConfig holds logrus settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
	Output string `mapstructure:"output"`
}
