package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Storage modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config is the main configuration for gallery.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	LogLevel    string            `toml:"log_level"` // "debug", "info", "warn" or "error"
	Mode        string            `toml:"mode"`      // "local" or "remote"
	Remote      RemoteConfig      `toml:"remote"`
	Workspace   WorkspaceConfig   `toml:"workspace"`
	HandleStore HandleStoreConfig `toml:"handle_store"`
	Backup      BackupConfig      `toml:"backup"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Analysis    AnalysisConfig    `toml:"analysis"`
}

// RemoteConfig points at the gallery admin REST API.
type RemoteConfig struct {
	BaseURL        string `toml:"base_url"` // e.g. http://localhost:8000/api/v1/admin
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WorkspaceConfig holds local workspace settings.
type WorkspaceConfig struct {
	// Path, when set, is picked without prompting (scripted use).
	Path   string   `toml:"path,omitempty"`
	Ignore []string `toml:"ignore"`
}

// HandleStoreConfig represents configuration for the directory-handle store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type HandleStoreConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

func (c HandleStoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.In("sqlite", "memory")),
		validation.Field(&c.DataDir, validation.When(c.Type != "memory", validation.Required)),
	)
}

// BackupConfig controls metadata snapshots.
type BackupConfig struct {
	Vault      VaultConfig `toml:"vault"`
	MaxBackups int         `toml:"max_backups"`
	Encrypt    bool        `toml:"encrypt"`
}

func (c BackupConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Vault),
		validation.Field(&c.MaxBackups, validation.Min(0)),
	)
}

// VaultConfig represents configuration for a backup vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services

	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

func (c VaultConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In("memory", "s3", "filesystem")),
		validation.Field(&c.FSVaultRoot, validation.When(c.Type == "filesystem", validation.Required)),
		validation.Field(&c.S3Bucket, validation.When(c.Type == "s3", validation.Required)),
		validation.Field(&c.S3Endpoint, is.URL),
	)
}

// EncryptionConfig holds paths to the age key pair used for encrypted backups.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

func (c EncryptionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.In("age", "test")),
	)
}

// AnalysisConfig controls bulk quality analysis.
type AnalysisConfig struct {
	Mode       string `toml:"mode"` // "all" re-analyzes everything, "skip" skips scored images
	MaxWorkers int    `toml:"max_workers"`
}

func (c AnalysisConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mode, validation.In("all", "skip")),
		validation.Field(&c.MaxWorkers, validation.Min(0)),
	)
}

// NewConfig creates a Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Mode:     ModeLocal,
		Remote: RemoteConfig{
			BaseURL:        "http://localhost:8000/api/v1/admin",
			TimeoutSeconds: 30,
		},
		Workspace: WorkspaceConfig{
			Ignore: []string{".*", "*.tmp"},
		},
		HandleStore: HandleStoreConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Backup: BackupConfig{
			Vault: VaultConfig{
				Type:        "filesystem",
				Name:        "local",
				FSVaultRoot: filepath.Join(baseDir, "backups"),
			},
			MaxBackups: 100,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "gallery.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "gallery.key"),
		},
		Analysis: AnalysisConfig{
			Mode:       "all",
			MaxWorkers: 8,
		},
	}
}

// Validate checks the configuration for inconsistent or unknown settings.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.BaseDir, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeLocal, ModeRemote)),
		validation.Field(&c.HandleStore),
		validation.Field(&c.Backup),
		validation.Field(&c.Encryption),
		validation.Field(&c.Analysis),
	)
	if err != nil {
		return err
	}

	if c.Mode == ModeRemote {
		return validation.ValidateStruct(&c.Remote,
			validation.Field(&c.Remote.BaseURL, validation.Required, is.URL),
			validation.Field(&c.Remote.TimeoutSeconds, validation.Min(0)),
		)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates the Config at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file at path. It refuses to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
