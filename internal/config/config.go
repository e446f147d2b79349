package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config leaves a field empty.
const (
	DefaultPollInterval      = 60 * time.Second
	DefaultProbeTimeout      = 10 * time.Second
	DefaultScanTimeout       = 30 * time.Second
	DefaultScanDelay         = time.Second
	DefaultSendDelay         = time.Second
	DefaultHeightTolerance   = 5
	DefaultMaxDrift          = 9999
	DefaultExplorerURL       = "https://escan.live"
	DefaultCheckpointPath    = "latestBlock.txt"
	DefaultCheckpointBackend = "file"
)

// Config holds the YAML configuration.
type Config struct {
	Version       int          `yaml:"version"`
	Global        GlobalConfig `yaml:"global"`
	Endpoints     []string     `yaml:"endpoints"`
	EndpointsFile string       `yaml:"endpoints_file"`
	Contracts     []Contract   `yaml:"contracts"`
	ContractsFile string       `yaml:"contracts_file"`
	Notifier      Notifier     `yaml:"notifier"`

	// dir anchors relative list file paths; empty means the working directory.
	dir string
}

type GlobalConfig struct {
	PollInterval    string           `yaml:"poll_interval"`
	ProbeTimeout    string           `yaml:"probe_timeout"`
	ScanTimeout     string           `yaml:"scan_timeout"`
	ScanDelay       string           `yaml:"scan_delay"`
	SendDelay       string           `yaml:"send_delay"`
	HeightTolerance uint64           `yaml:"height_tolerance"`
	MaxDrift        uint64           `yaml:"max_drift"`
	ExplorerURL     string           `yaml:"explorer_url"`
	Checkpoint      CheckpointConfig `yaml:"checkpoint"`
}

type CheckpointConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Contract is a watched Safe address with an optional display alias.
type Contract struct {
	Address string `yaml:"address"`
	Alias   string `yaml:"alias"`
}

type Notifier struct {
	Type       string `yaml:"type"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
	APIURL     string `yaml:"api_url"`
	WebhookURL string `yaml:"webhook_url"`
	URL        string `yaml:"url"`
	Method     string `yaml:"method"`
	Template   string `yaml:"template"`
}

// Timings are the parsed durations from GlobalConfig.
type Timings struct {
	PollInterval time.Duration
	ProbeTimeout time.Duration
	ScanTimeout  time.Duration
	ScanDelay    time.Duration
	SendDelay    time.Duration
}

var envPattern = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)

// Load parses YAML, expands env vars in scalar values, applies defaults, and validates.
// Relative endpoints_file and contracts_file paths resolve against the config directory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := interpolateEnv(&root); err != nil {
		return nil, err
	}

	var cfg Config
	if root.Kind != 0 {
		if err := root.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.dir = filepath.Dir(path)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

// interpolateEnv expands ${VAR} inside scalar values only, so substituted text is never
// reparsed as YAML.
func interpolateEnv(root *yaml.Node) error {
	var missing []string
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode {
			if !envPattern.MatchString(n.Value) {
				return
			}
			n.Value = envPattern.ReplaceAllStringFunc(n.Value, func(match string) string {
				name := envPattern.FindStringSubmatch(match)[1]
				if val, ok := os.LookupEnv(name); ok {
					return val
				}
				missing = append(missing, name)
				return match
			})
			// Plain scalars re-resolve so numeric fields accept ${VAR}.
			if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle|yaml.TaggedStyle) == 0 {
				n.Tag = ""
			}
			return
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(root)

	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return nil
}

func (c *Config) applyDefaults() {
	g := &c.Global
	if g.HeightTolerance == 0 {
		g.HeightTolerance = DefaultHeightTolerance
	}
	if g.MaxDrift == 0 {
		g.MaxDrift = DefaultMaxDrift
	}
	if g.ExplorerURL == "" {
		g.ExplorerURL = DefaultExplorerURL
	}
	if g.Checkpoint.Backend == "" {
		g.Checkpoint.Backend = DefaultCheckpointBackend
	}
	if g.Checkpoint.Path == "" {
		g.Checkpoint.Path = DefaultCheckpointPath
	}
	if c.Notifier.Type == "" {
		c.Notifier.Type = "telegram"
	}
}

// Validate performs small, direct schema checks.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if len(c.Endpoints) == 0 && c.EndpointsFile == "" {
		return errors.New("endpoints or endpoints_file is required")
	}
	if len(c.Contracts) == 0 && c.ContractsFile == "" {
		return errors.New("contracts or contracts_file is required")
	}
	if _, err := c.Global.Timings(); err != nil {
		return fmt.Errorf("global: %w", err)
	}
	switch strings.ToLower(c.Global.Checkpoint.Backend) {
	case "file", "sqlite", "leveldb":
	default:
		return fmt.Errorf("global.checkpoint: unsupported backend: %s", c.Global.Checkpoint.Backend)
	}
	if err := c.Notifier.Validate(); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	return nil
}

// Timings parses the configured durations, filling defaults for empty fields.
func (g GlobalConfig) Timings() (Timings, error) {
	t := Timings{}
	fields := []struct {
		name string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"poll_interval", g.PollInterval, DefaultPollInterval, &t.PollInterval},
		{"probe_timeout", g.ProbeTimeout, DefaultProbeTimeout, &t.ProbeTimeout},
		{"scan_timeout", g.ScanTimeout, DefaultScanTimeout, &t.ScanTimeout},
		{"scan_delay", g.ScanDelay, DefaultScanDelay, &t.ScanDelay},
		{"send_delay", g.SendDelay, DefaultSendDelay, &t.SendDelay},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.dst = f.def
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return Timings{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if d < 0 {
			return Timings{}, fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return t, nil
}

func (n *Notifier) Validate() error {
	switch strings.ToLower(n.Type) {
	case "telegram":
		if n.BotToken == "" || n.ChatID == "" {
			return errors.New("bot_token and chat_id are required for telegram")
		}
	case "slack", "teams":
		if n.WebhookURL == "" {
			return errors.New("webhook_url is required for slack/teams notifiers")
		}
	case "webhook":
		if n.URL == "" {
			return errors.New("url is required for webhook notifier")
		}
		if n.Method == "" {
			n.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported notifier type: %s", n.Type)
	}
	return nil
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
