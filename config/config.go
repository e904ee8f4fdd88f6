// ABOUTME: Agent configuration storage at XDG paths with environment overrides
// ABOUTME: Holds server endpoint, sync tuning, and per-source data locations
package config

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/oklog/ulid/v2"
)

// PlaceholderURL is the value shipped in a freshly written config file.
// Validate rejects it so a misconfigured agent fails before any network
// traffic.
const PlaceholderURL = "https://your-server.example.com"

// Defaults for sync tuning.
const (
	DefaultSyncIntervalMinutes = 15
	DefaultMaxItemsPerSync     = 100
	DefaultLookbackHours       = 24
)

// Config holds everything the agent needs to run. Zero values for source
// paths disable nothing: adapters report themselves unavailable when their
// data is absent.
type Config struct {
	ServerURL string `json:"server_url"`
	AgentID   string `json:"agent_id"`

	SyncIntervalMinutes int `json:"sync_interval_minutes"`
	MaxItemsPerSync     int `json:"max_items_per_sync"`
	LookbackHours       int `json:"lookback_hours"`

	GranolaCachePath  string `json:"granola_cache_path"`
	IMessageDBPath    string `json:"imessage_db_path"`
	WhatsAppExportDir string `json:"whatsapp_export_dir"`
	PlaudDataDir      string `json:"plaud_data_dir"`
	FathomAPIKey      string `json:"fathom_api_key,omitempty"`

	// StateDir overrides the XDG state location; empty means default.
	StateDir string `json:"state_dir,omitempty"`
}

// Dir returns the XDG-compliant directory for agent configuration.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, "commsync")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns a config populated with conventional macOS data
// locations and a fresh agent id.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServerURL:           PlaceholderURL,
		AgentID:             GenerateAgentID(),
		SyncIntervalMinutes: DefaultSyncIntervalMinutes,
		MaxItemsPerSync:     DefaultMaxItemsPerSync,
		LookbackHours:       DefaultLookbackHours,
		GranolaCachePath: filepath.Join(home,
			"Library", "Application Support", "Granola", "cache-v3.json"),
		IMessageDBPath:    filepath.Join(home, "Library", "Messages", "chat.db"),
		WhatsAppExportDir: filepath.Join(home, "Documents", "WhatsApp Exports"),
		PlaudDataDir:      filepath.Join(home, "Documents", "Plaud"),
	}
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment variable overrides:
// - COMMSYNC_URL
// - COMMSYNC_AGENT_ID
// - COMMSYNC_INTERVAL_MINUTES
// - COMMSYNC_MAX_ITEMS
// - COMMSYNC_LOOKBACK_HOURS
// - FATHOM_API_KEY.
func Load() (*Config, error) {
	cfg := Default()

	f, err := os.Open(Path())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config at %s: %w", Path(), err)
	}

	if cfg.AgentID == "" {
		cfg.AgentID = GenerateAgentID()
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("COMMSYNC_URL"); url != "" {
		cfg.ServerURL = url
	}
	if id := os.Getenv("COMMSYNC_AGENT_ID"); id != "" {
		cfg.AgentID = id
	}
	if v := os.Getenv("COMMSYNC_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SyncIntervalMinutes = n
		}
	}
	if v := os.Getenv("COMMSYNC_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxItemsPerSync = n
		}
	}
	if v := os.Getenv("COMMSYNC_LOOKBACK_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LookbackHours = n
		}
	}
	if key := os.Getenv("FATHOM_API_KEY"); key != "" {
		cfg.FathomAPIKey = key
	}
}

// Save writes the config with restricted permissions, creating the
// directory if needed.
func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks that the config can reach a real server. It runs before
// any network call so a scheduler-launched agent fails loudly instead of
// pushing nowhere.
func (c *Config) Validate() error {
	switch {
	case c.ServerURL == "":
		return fmt.Errorf("server URL is not set (edit %s or set COMMSYNC_URL)", Path())
	case c.ServerURL == PlaceholderURL:
		return fmt.Errorf("server URL is still the placeholder (edit %s or set COMMSYNC_URL)", Path())
	case !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://"):
		return fmt.Errorf("server URL %q must start with http:// or https://", c.ServerURL)
	}
	if c.MaxItemsPerSync < 0 {
		return fmt.Errorf("max_items_per_sync must not be negative")
	}
	return nil
}

// Interval returns the daemon sleep between cycles.
func (c *Config) Interval() time.Duration {
	if c.SyncIntervalMinutes <= 0 {
		return DefaultSyncIntervalMinutes * time.Minute
	}
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// Lookback returns the incremental sync window size. The window is
// exactly this long; hours configured are hours scanned.
func (c *Config) Lookback() time.Duration {
	if c.LookbackHours <= 0 {
		return DefaultLookbackHours * time.Hour
	}
	return time.Duration(c.LookbackHours) * time.Hour
}

// GenerateAgentID generates a new ULID identifying this agent install.
func GenerateAgentID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
