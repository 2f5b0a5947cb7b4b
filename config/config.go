package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alejandrodnm/squadbid/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del servicio.
type Config struct {
	Protocol   ProtocolConfig      `yaml:"protocol"`
	Fees       FeesConfig          `yaml:"fees"`
	Formations map[string][]string `yaml:"formations"` // nombre → 7 pesos decimales
	Engine     EngineConfig        `yaml:"engine"`
	Oracle     OracleConfig        `yaml:"oracle"`
	Auth       AuthConfig          `yaml:"auth"`
	API        APIConfig           `yaml:"api"`
	Storage    StorageConfig       `yaml:"storage"`
	Log        LogConfig           `yaml:"log"`
}

// ProtocolConfig contiene los límites de pujas y las ventanas de tiempo.
type ProtocolConfig struct {
	MinWager     int64         `yaml:"min_wager"`     // unidades mínimas
	MinDuration  time.Duration `yaml:"min_duration"`  // e.g. "1m"
	MaxDuration  time.Duration `yaml:"max_duration"`  // e.g. "30m"
	GraceWindow  time.Duration `yaml:"grace_window"`  // antigüedad mínima para SweepBid
	ReviveWait   time.Duration `yaml:"revive_wait"`   // espera para revivir sin pagar instant
	DisputeAfter time.Duration `yaml:"dispute_after"` // tras EndTime, el árbitro puede disputar
	StaleAfter   time.Duration `yaml:"stale_after"`   // el sweeper cancela pujas más viejas; 0 = desactivado
}

// FeesConfig es el schedule inicial; se guarda como versión 1 en el primer arranque.
type FeesConfig struct {
	UpfrontBps        int64 `yaml:"upfront_bps"`
	SquadFee          int64 `yaml:"squad_fee"`
	ReviveStandardFee int64 `yaml:"revive_standard_fee"`
	ReviveInstantFee  int64 `yaml:"revive_instant_fee"`
}

// EngineConfig controla los loops de fondo.
type EngineConfig struct {
	MatchIntervalSeconds  int  `yaml:"match_interval_seconds"`
	SettleIntervalSeconds int  `yaml:"settle_interval_seconds"`
	SweepIntervalSeconds  int  `yaml:"sweep_interval_seconds"`
	Disabled              bool `yaml:"disabled"`
}

// OracleConfig apunta al feed de precios. Sin BaseURL se usa la tabla Static.
type OracleConfig struct {
	BaseURL           string            `yaml:"base_url"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
	TimeoutSeconds    int               `yaml:"timeout_seconds"`
	Static            map[string]string `yaml:"static"` // token → precio, para desarrollo
}

// AuthConfig firma y verifica los tokens de capacidad.
type AuthConfig struct {
	Secret        string `yaml:"secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// APIConfig controla el servidor HTTP.
type APIConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate rechaza configuraciones que el protocolo no puede aplicar.
func (c *Config) Validate() error {
	p := c.Protocol
	if p.MinWager <= 0 {
		return fmt.Errorf("protocol.min_wager must be positive, got %d", p.MinWager)
	}
	if p.MinDuration <= 0 || p.MaxDuration < p.MinDuration {
		return fmt.Errorf("protocol durations: need 0 < min_duration <= max_duration, got %s / %s", p.MinDuration, p.MaxDuration)
	}
	if p.GraceWindow < 0 || p.ReviveWait < 0 || p.DisputeAfter < 0 || p.StaleAfter < 0 {
		return fmt.Errorf("protocol windows must not be negative")
	}
	if err := c.FeeConfig().Validate(); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	if _, err := c.FormationTable(); err != nil {
		return fmt.Errorf("formations: %w", err)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required (or set SQUADBID_AUTH_SECRET)")
	}
	return nil
}

// Limits devuelve los límites de puja del protocolo.
func (c *Config) Limits() domain.BidLimits {
	return domain.BidLimits{
		MinWager:    c.Protocol.MinWager,
		MinDuration: c.Protocol.MinDuration,
		MaxDuration: c.Protocol.MaxDuration,
	}
}

// FeeConfig devuelve el schedule inicial como domain.FeeConfig.
func (c *Config) FeeConfig() domain.FeeConfig {
	return domain.FeeConfig{
		UpfrontBps:        c.Fees.UpfrontBps,
		SquadFee:          c.Fees.SquadFee,
		ReviveStandardFee: c.Fees.ReviveStandardFee,
		ReviveInstantFee:  c.Fees.ReviveInstantFee,
	}
}

// FormationTable parsea las formaciones; sin entradas usa las de fábrica.
func (c *Config) FormationTable() (domain.Formations, error) {
	if len(c.Formations) == 0 {
		return domain.DefaultFormations(), nil
	}
	names := make([]string, 0, len(c.Formations))
	for name := range c.Formations {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(domain.Formations, len(names))
	for _, name := range names {
		w, err := domain.ParseWeights(c.Formations[name])
		if err != nil {
			return nil, fmt.Errorf("formation %q: %w", name, err)
		}
		out[name] = w
	}
	return out, nil
}

// MatchInterval devuelve el intervalo del matchmaker como time.Duration.
func (c *Config) MatchInterval() time.Duration {
	return time.Duration(c.Engine.MatchIntervalSeconds) * time.Second
}

// SettleInterval devuelve el intervalo del settler como time.Duration.
func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.Engine.SettleIntervalSeconds) * time.Second
}

// SweepInterval devuelve el intervalo del sweeper como time.Duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Engine.SweepIntervalSeconds) * time.Second
}

// TokenTTL devuelve la validez de los tokens emitidos al arrancar.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SQUADBID_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SQUADBID_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("SQUADBID_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("SQUADBID_ORACLE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Protocol.MinWager <= 0 {
		cfg.Protocol.MinWager = 1
	}
	if cfg.Protocol.MinDuration <= 0 {
		cfg.Protocol.MinDuration = time.Minute
	}
	if cfg.Protocol.MaxDuration <= 0 {
		cfg.Protocol.MaxDuration = 30 * time.Minute
	}
	if cfg.Protocol.GraceWindow <= 0 {
		cfg.Protocol.GraceWindow = 2 * time.Minute
	}
	if cfg.Protocol.ReviveWait <= 0 {
		cfg.Protocol.ReviveWait = 24 * time.Hour
	}
	if cfg.Protocol.DisputeAfter <= 0 {
		cfg.Protocol.DisputeAfter = 10 * time.Minute
	}
	if cfg.Engine.MatchIntervalSeconds <= 0 {
		cfg.Engine.MatchIntervalSeconds = 5
	}
	if cfg.Engine.SettleIntervalSeconds <= 0 {
		cfg.Engine.SettleIntervalSeconds = 10
	}
	if cfg.Engine.SweepIntervalSeconds <= 0 {
		cfg.Engine.SweepIntervalSeconds = 60
	}
	if cfg.Oracle.RequestsPerSecond <= 0 {
		cfg.Oracle.RequestsPerSecond = 10
	}
	if cfg.Oracle.Burst <= 0 {
		cfg.Oracle.Burst = 5
	}
	if cfg.Oracle.TimeoutSeconds <= 0 {
		cfg.Oracle.TimeoutSeconds = 15
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		cfg.Auth.TokenTTLHours = 24 * 30
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = ":8080"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "squadbid.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
