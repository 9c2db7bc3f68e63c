package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// DefaultConfigPath is the file looked up in the working directory when no --config is given.
const DefaultConfigPath = ".ytclip.toml"

// EnvPrefix prefixes every environment variable understood by the CLI.
const EnvPrefix = "YTCLIP_"

// Split modes
const (
	SplitFull  = "full"
	SplitClips = "clips"
)

// PlaceholderExt marks a segment that could not be rendered. It is never a media extension.
const PlaceholderExt = ".failed"

const maxBackoff = 30 * time.Second

var supportedExtensions = []string{"mka", "mkv", "ogg", "webm"}

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Pipeline PipelineConfig `toml:"pipeline"`
	Output   OutputConfig   `toml:"output"`
	Fetch    FetchConfig    `toml:"fetch"`
	Render   RenderConfig   `toml:"render"`
	Log      LogConfig      `toml:"log"`
}

// PipelineConfig selects inputs and how items are split into segments.
type PipelineConfig struct {
	IDs           []string `toml:"ids"`
	Split         string   `toml:"split"`
	Shuffle       bool     `toml:"shuffle"`
	ClipRegex     []string `toml:"clip_regex"`
	FallbackWhole bool     `toml:"fallback_whole"`
	TitleCase     bool     `toml:"title_case"`
}

// OutputConfig contains output and cache locations.
type OutputConfig struct {
	Dir   string `toml:"dir"`
	Ext   string `toml:"ext"`
	Cache string `toml:"cache"`
}

// FetchConfig tunes retries and pacing of the fetch stage.
type FetchConfig struct {
	Retries int     `toml:"retries"`
	Backoff string  `toml:"backoff"`
	Rate    float64 `toml:"rate"`
}

// RenderConfig tunes the render worker pool.
type RenderConfig struct {
	Cores   int    `toml:"cores"`
	Bitrate string `toml:"bitrate"`
	Retries int    `toml:"retries"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values absent from the file keep their defaults. A missing file yields [ErrMissingConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Normalize expands "~" in directory settings and canonicalizes enumerations.
func (c *Config) Normalize() error {
	var err error
	if c.Output.Dir, err = ExpandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if c.Output.Cache, err = ExpandPath(c.Output.Cache); err != nil {
		return fmt.Errorf("output.cache: %w", err)
	}
	c.Output.Ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Output.Ext)), ".")
	c.Pipeline.Split = strings.ToLower(strings.TrimSpace(c.Pipeline.Split))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	ids := c.Pipeline.IDs[:0]
	for _, id := range c.Pipeline.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.Pipeline.IDs = ids
	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Pipeline.Split {
	case SplitFull, SplitClips:
	default:
		return fmt.Errorf("%w: pipeline.split must be %q or %q, got %q", ErrInvalidConfig, SplitFull, SplitClips, c.Pipeline.Split)
	}

	for _, expr := range c.Pipeline.ClipRegex {
		if err := validateClipRegex(expr); err != nil {
			return err
		}
	}

	if !isSupportedExtension(c.Output.Ext) {
		return fmt.Errorf("%w: output.ext must be one of %s, got %q", ErrInvalidConfig, strings.Join(supportedExtensions, ", "), c.Output.Ext)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("%w: output.dir must be set", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Output.Cache) == "" {
		return fmt.Errorf("%w: output.cache must be set", ErrInvalidConfig)
	}

	if c.Fetch.Retries < 0 {
		return fmt.Errorf("%w: fetch.retries must not be negative", ErrInvalidConfig)
	}
	if _, err := time.ParseDuration(c.Fetch.Backoff); err != nil {
		return fmt.Errorf("%w: fetch.backoff: %v", ErrInvalidConfig, err)
	}
	if c.Fetch.Rate < 0 {
		return fmt.Errorf("%w: fetch.rate must not be negative", ErrInvalidConfig)
	}

	if c.Render.Cores < 0 {
		return fmt.Errorf("%w: render.cores must not be negative", ErrInvalidConfig)
	}
	if c.Render.Retries < 0 {
		return fmt.Errorf("%w: render.retries must not be negative", ErrInvalidConfig)
	}
	if _, err := ParseBitrate(c.Render.Bitrate); err != nil {
		return err
	}

	if c.Log.Level != "" {
		switch c.Log.Level {
		case "debug", "info", "warn", "error", "fatal":
		default:
			return fmt.Errorf("%w: log.level %q", ErrInvalidConfig, c.Log.Level)
		}
	}

	return nil
}

// Extension returns the output extension with its leading dot.
func (c *Config) Extension() string {
	return "." + c.Output.Ext
}

// Workers returns the render pool size, derived from the CPU count when unset.
func (c *Config) Workers() int {
	if c.Render.Cores > 0 {
		return c.Render.Cores
	}
	return max(runtime.NumCPU(), 1)
}

// FetchBackoff returns the initial fetch backoff, capped at 30s.
func (c *Config) FetchBackoff() time.Duration {
	d, err := time.ParseDuration(c.Fetch.Backoff)
	if err != nil || d < 0 {
		return 0
	}
	return min(d, maxBackoff)
}

// StorePath is the completion store database file inside the cache directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.Output.Cache, "ytclip.db")
}

// LockPath is the file locked for the duration of a run.
func (c *Config) LockPath() string {
	return filepath.Join(c.Output.Cache, "ytclip.lock")
}

// TempDir holds raw downloads while they are being split and rendered.
func (c *Config) TempDir() string {
	return filepath.Join(c.Output.Cache, "tmp")
}

// ParseBitrate parses a "<n>K" bitrate (case-insensitive suffix) into kilobits per second.
func ParseBitrate(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	num, ok := strings.CutSuffix(strings.ToLower(trimmed), "k")
	if !ok {
		return 0, fmt.Errorf("%w: bitrate %q does not end with 'K'", ErrInvalidConfig, s)
	}
	n, err := strconv.ParseUint(num, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: bitrate %q is not a positive number of kilobits", ErrInvalidConfig, s)
	}
	return int(n), nil
}

// FormatBitrate renders kilobits per second in the form ffmpeg expects.
func FormatBitrate(kbps int) string {
	return strconv.Itoa(kbps) + "K"
}

func isSupportedExtension(ext string) bool {
	for _, e := range supportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

func validateClipRegex(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("%w: pipeline.clip_regex %q: %v", ErrInvalidConfig, expr, err)
	}
	var hasTime, hasTitle bool
	for _, name := range re.SubexpNames() {
		switch name {
		case "time":
			hasTime = true
		case "title":
			hasTitle = true
		}
	}
	if !hasTime || !hasTitle {
		return fmt.Errorf("%w: pipeline.clip_regex %q must define named groups 'time' and 'title'", ErrInvalidConfig, expr)
	}
	return nil
}
