package internal

import (
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cardsync/internal/cardsync"
	"github.com/starford/cardsync/internal/render"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store backends.
const (
	BackendSQLite  = "sqlite"
	BackendCouchDB = "couchdb"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Deck   DeckConfig        `yaml:"deck"`
	Store  StoreConfig       `yaml:"store"`
	Render RenderConfig      `yaml:"render"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Deck.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Render.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotated log file next to stdout. An empty Path
// keeps logging on stdout only.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
//
// KeepSync re-sends documents as they are saved while the server runs.
type VaultConfig struct {
	Path     string `yaml:"path"`
	KeepSync bool   `yaml:"keep_sync"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// DeckConfig picks the deck for documents whose frontmatter names none.
//
// Mode is one of:
//   - "standalone" (default): one deck per document, named after its H1.
//   - "default": every document goes to Default.
type DeckConfig struct {
	Mode    string `yaml:"mode"`
	Default string `yaml:"default"`
}

// Validate validates the deck configuration.
func (c *DeckConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = cardsync.ModeStandalone
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(cardsync.ModeStandalone, cardsync.ModeDefault)),
		validation.Field(&c.Default, validation.When(c.Mode == cardsync.ModeDefault, validation.Required)),
	)
}

// Sync converts c for the orchestrator.
func (c *DeckConfig) Sync() cardsync.DeckConfig {
	return cardsync.DeckConfig{Mode: c.Mode, Default: c.Default}
}

// StoreConfig selects and configures the card store.
type StoreConfig struct {
	Backend string        `yaml:"backend"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	CouchDB CouchDBConfig `yaml:"couchdb"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(BackendSQLite, BackendCouchDB)),
	); err != nil {
		return err
	}
	if c.Backend == BackendCouchDB {
		return c.CouchDB.Validate()
	}
	return c.SQLite.Validate()
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CouchDBConfig holds CouchDB connection configuration.
type CouchDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// Validate validates the CouchDB configuration.
func (c *CouchDBConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Database, validation.Required),
	)
}

// RenderConfig configures the goldmark renderer used for card sides.
type RenderConfig struct {
	Extensions []string `yaml:"extensions"`
	HardWraps  bool     `yaml:"hard_wraps"`
	Unsafe     bool     `yaml:"unsafe"`
}

// Validate validates the render configuration.
func (c *RenderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Extensions, validation.Each(validation.By(knownExtension))),
	)
}

func knownExtension(value interface{}) error {
	name, _ := value.(string)
	if !render.KnownExtension(name) {
		return errors.New("unknown markdown extension")
	}
	return nil
}

// Options converts c for the renderer.
func (c *RenderConfig) Options() render.Options {
	return render.Options{
		Extensions: c.Extensions,
		HardWraps:  c.HardWraps,
		Unsafe:     c.Unsafe,
	}
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Deck: DeckConfig{
			Mode: cardsync.ModeStandalone,
		},
		Store: StoreConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path: "./cardsync.db",
			},
			CouchDB: CouchDBConfig{
				Database: "cardsync",
			},
		},
		Render: RenderConfig{
			Extensions: []string{"gfm"},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
