// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

// Bus holds event-bus settings: a consumer-group id and produce retry/timeout
// bounds. No code outside this package reads them: the simulator, coordinator
// and predictor each join their own fixed consumer group, and internal/bus
// uses its own fixed attempt count.
type Bus struct {
	GroupID           string        `mapstructure:"group_id"`
	ProduceMaxRetries int           `mapstructure:"produce_max_retries"`
	ProduceTimeout    time.Duration `mapstructure:"produce_timeout"`
}

// Hospital is one hospital's static capacity configuration, mirrored from
// domain.HospitalConfig so it can be overridden per-deployment via config.
type Hospital struct {
	ID               string  `mapstructure:"id"`
	Desks            int     `mapstructure:"desks"`
	TriageBoxes      int     `mapstructure:"triage_boxes"`
	ConsultRooms     int     `mapstructure:"consult_rooms"`
	ObservationBeds  int     `mapstructure:"observation_beds"`
	OnCallDoctors    int     `mapstructure:"on_call_doctors"`
	BaseArrivalPerHr float64 `mapstructure:"base_arrival_per_hour"`
}

// Simulation configures the per-hospital simulated clock.
type Simulation struct {
	Speed            float64       `mapstructure:"speed"`
	DurationMinutes  int           `mapstructure:"duration_minutes"` // 0 = unbounded
	MaxTickMinutes   float64       `mapstructure:"max_tick_minutes"`
	StatsInterval    time.Duration `mapstructure:"stats_interval_sim_minutes"`
	ContextInterval  time.Duration `mapstructure:"context_interval_sim_minutes"`
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// Observability is a backwards-compatible alias, kept in the teacher's
// idiom of aliasing the struct name alongside the mapstructure-tagged one.
type Observability = ObservabilityConfig

// ExactlyOnce configures internal/idempotency's Redis-backed dedup
// manager.
type ExactlyOnce struct {
	Namespace  string        `mapstructure:"namespace"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// Predictor configures internal/predictor's forecaster and retrain cadence.
// Model selects the forecasting.Forecaster implementation trained per
// hospital: "holt_winters" (the default, seasonal) or "ewma" (a lighter
// smoothed-level model, useful for a hospital whose history is too short
// or noisy for a reliable 24-hour season).
type Predictor struct {
	RetrainCron   string  `mapstructure:"retrain_cron"`
	SyntheticDays int     `mapstructure:"synthetic_days"`
	AnomalyZScore float64 `mapstructure:"anomaly_z_score"`
	Model         string  `mapstructure:"model"`
}

type Config struct {
	Redis          Redis               `mapstructure:"redis"`
	Bus            Bus                 `mapstructure:"bus"`
	Hospitals      []Hospital          `mapstructure:"hospitals"`
	Simulation     Simulation          `mapstructure:"simulation"`
	CircuitBreaker CircuitBreaker      `mapstructure:"circuit_breaker"`
	Observability  Observability       `mapstructure:"observability"`
	ExactlyOnce    ExactlyOnce         `mapstructure:"exactly_once"`
	Predictor      Predictor           `mapstructure:"predictor"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Bus: Bus{
			GroupID:           "gemelo-digital",
			ProduceMaxRetries: 3,
			ProduceTimeout:    10 * time.Second,
		},
		Hospitals: []Hospital{
			{ID: "chuac", Desks: 4, TriageBoxes: 3, ConsultRooms: 6, ObservationBeds: 20, OnCallDoctors: 8, BaseArrivalPerHr: 15},
			{ID: "modelo", Desks: 2, TriageBoxes: 1, ConsultRooms: 3, ObservationBeds: 8, OnCallDoctors: 4, BaseArrivalPerHr: 6},
			{ID: "san_rafael", Desks: 2, TriageBoxes: 1, ConsultRooms: 2, ObservationBeds: 6, OnCallDoctors: 3, BaseArrivalPerHr: 5},
		},
		Simulation: Simulation{
			Speed:           1.0,
			DurationMinutes: 0,
			MaxTickMinutes:  10,
			StatsInterval:   2 * time.Minute,
			ContextInterval: 60 * time.Minute,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       10,
		},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
			Tracing:     TracingConfig{Enabled: false},
		},
		ExactlyOnce: ExactlyOnce{
			Namespace:  "idempotency",
			DefaultTTL: 24 * time.Hour,
		},
		Predictor: Predictor{
			RetrainCron:   "0 3 * * *",
			SyntheticDays: 90,
			AnomalyZScore: 2.0,
			Model:         "holt_winters",
		},
	}
}

// Load reads configuration from a YAML file and env overrides, following
// the teacher's viper pattern: defaults set first, file read if present,
// environment always wins via AutomaticEnv.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("bus.group_id", def.Bus.GroupID)
	v.SetDefault("bus.produce_max_retries", def.Bus.ProduceMaxRetries)
	v.SetDefault("bus.produce_timeout", def.Bus.ProduceTimeout)

	v.SetDefault("hospitals", hospitalsAsMaps(def.Hospitals))

	v.SetDefault("simulation.speed", def.Simulation.Speed)
	v.SetDefault("simulation.duration_minutes", def.Simulation.DurationMinutes)
	v.SetDefault("simulation.max_tick_minutes", def.Simulation.MaxTickMinutes)
	v.SetDefault("simulation.stats_interval_sim_minutes", def.Simulation.StatsInterval)
	v.SetDefault("simulation.context_interval_sim_minutes", def.Simulation.ContextInterval)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)

	v.SetDefault("exactly_once.namespace", def.ExactlyOnce.Namespace)
	v.SetDefault("exactly_once.default_ttl", def.ExactlyOnce.DefaultTTL)

	v.SetDefault("predictor.retrain_cron", def.Predictor.RetrainCron)
	v.SetDefault("predictor.synthetic_days", def.Predictor.SyntheticDays)
	v.SetDefault("predictor.anomaly_z_score", def.Predictor.AnomalyZScore)
	v.SetDefault("predictor.model", def.Predictor.Model)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := overlaySecrets(&cfg); err != nil {
		return nil, fmt.Errorf("load redis secrets: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// redisSecrets holds credentials that should come from the environment,
// never a YAML file on disk. Parsed separately with caarlos0/env rather
// than folded into viper's AutomaticEnv binding, since that binding only
// fires for keys already present in the config tree and a secret with no
// YAML default would never resolve through it.
type redisSecrets struct {
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
}

// overlaySecrets applies env-sourced Redis credentials on top of whatever
// viper already unmarshalled, leaving cfg untouched when the environment
// sets nothing.
func overlaySecrets(cfg *Config) error {
	var s redisSecrets
	if err := env.Parse(&s); err != nil {
		return err
	}
	if s.Username != "" {
		cfg.Redis.Username = s.Username
	}
	if s.Password != "" {
		cfg.Redis.Password = s.Password
	}
	return nil
}

func hospitalsAsMaps(hs []Hospital) []map[string]any {
	out := make([]map[string]any, len(hs))
	for i, h := range hs {
		out[i] = map[string]any{
			"id": h.ID, "desks": h.Desks, "triage_boxes": h.TriageBoxes,
			"consult_rooms": h.ConsultRooms, "observation_beds": h.ObservationBeds,
			"on_call_doctors": h.OnCallDoctors, "base_arrival_per_hour": h.BaseArrivalPerHr,
		}
	}
	return out
}

// Validate checks config constraints and returns an error on invalid
// settings, mirroring the teacher's explicit-constraint-check style.
func Validate(cfg *Config) error {
	if len(cfg.Hospitals) == 0 {
		return fmt.Errorf("hospitals must be non-empty")
	}
	for _, h := range cfg.Hospitals {
		if h.Desks < 1 || h.TriageBoxes < 1 || h.ConsultRooms < 1 || h.ObservationBeds < 1 {
			return fmt.Errorf("hospital %q: desks/triage_boxes/consult_rooms/observation_beds must each be >= 1", h.ID)
		}
		if h.OnCallDoctors < 0 {
			return fmt.Errorf("hospital %q: on_call_doctors must be >= 0", h.ID)
		}
		if h.BaseArrivalPerHr <= 0 {
			return fmt.Errorf("hospital %q: base_arrival_per_hour must be > 0", h.ID)
		}
	}
	if cfg.Simulation.Speed < 0.1 {
		return fmt.Errorf("simulation.speed must be >= 0.1")
	}
	if cfg.Simulation.MaxTickMinutes <= 0 || cfg.Simulation.MaxTickMinutes > 10 {
		return fmt.Errorf("simulation.max_tick_minutes must be in (0, 10]")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.Predictor.SyntheticDays < 1 {
		return fmt.Errorf("predictor.synthetic_days must be >= 1")
	}
	switch cfg.Predictor.Model {
	case "holt_winters", "ewma":
	default:
		return fmt.Errorf("predictor.model must be %q or %q, got %q", "holt_winters", "ewma", cfg.Predictor.Model)
	}
	return nil
}
