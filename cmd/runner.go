package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/preflight"
	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
	"github.com/desertthunder/ytclip/internal/ui"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config        *shared.Config
	configPath    string
	logger        *log.Logger
	output        io.Writer
	palette       *ui.Palette
	newFetcher    func() (services.Fetcher, error)
	newTranscoder func(tempDir string) (services.Transcoder, error)
	preflight     func(cfg *shared.Config) []preflight.Result
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config // used as-is, skipping file and env loading
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer

	// Factories for the external programs; nil resolves yt-dlp and ffmpeg on PATH.
	Fetcher    func() (services.Fetcher, error)
	Transcoder func(tempDir string) (services.Transcoder, error)
	Preflight  func(cfg *shared.Config) []preflight.Result
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Fetcher == nil {
		opts.Fetcher = func() (services.Fetcher, error) { return services.NewYtDlp() }
	}
	if opts.Transcoder == nil {
		opts.Transcoder = func(tempDir string) (services.Transcoder, error) { return services.NewFfmpeg(tempDir) }
	}
	if opts.Preflight == nil {
		opts.Preflight = preflight.RunAll
	}

	return &Runner{
		config:        opts.Config,
		configPath:    opts.ConfigPath,
		logger:        opts.Logger,
		output:        opts.Output,
		palette:       ui.PaletteFor(opts.Output),
		newFetcher:    opts.Fetcher,
		newTranscoder: opts.Transcoder,
		preflight:     opts.Preflight,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, setupCommand, statusCommand, doctorCommand, segmentsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// globalFlags are accepted by every command.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   shared.DefaultConfigPath,
			Sources: cli.EnvVars(shared.EnvPrefix + "CONFIG"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Sources: cli.EnvVars(shared.EnvPrefix + "LOG_LEVEL"),
		},
	}
}

// loadConfig layers embedded defaults, the TOML file, environment variables and flags, in that
// order, then validates the result and applies the log level.
//
// A missing config file is only an error when its path was given explicitly.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	explicit := path != ""
	if !explicit {
		path = cmd.String("config")
		explicit = cmd.IsSet("config")
	}
	if path == "" {
		path = shared.DefaultConfigPath
	}

	config, err := shared.LoadConfig(path)
	switch {
	case errors.Is(err, shared.ErrMissingConfig) && !explicit:
		r.logger.Debug("config file not found, using defaults", "path", path)
		config = shared.DefaultConfig()
	case err != nil:
		return nil, err
	default:
		r.logger.Debug("loaded config", "path", path)
	}

	applyFlags(cmd, config)

	if err := config.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Log.Level != "" {
		if err := shared.SetLogLevel(r.logger, config.Log.Level); err != nil {
			return nil, err
		}
	}

	r.config = config
	return config, nil
}

// applyFlags overrides config values with flags given on the command line or through YTCLIP_*
// environment variables.
func applyFlags(cmd *cli.Command, c *shared.Config) {
	setString := func(name string, dst *string) {
		if hasFlag(cmd, name) && cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if hasFlag(cmd, name) && cmd.IsSet(name) {
			*dst = cmd.Bool(name)
		}
	}
	setInt := func(name string, dst *int) {
		if hasFlag(cmd, name) && cmd.IsSet(name) {
			*dst = cmd.Int(name)
		}
	}

	setString("log-level", &c.Log.Level)
	setString("split", &c.Pipeline.Split)
	setBool("shuffle", &c.Pipeline.Shuffle)
	setBool("fallback-whole", &c.Pipeline.FallbackWhole)
	setBool("title-case", &c.Pipeline.TitleCase)
	setString("output-dir", &c.Output.Dir)
	setString("ext", &c.Output.Ext)
	setString("cache", &c.Output.Cache)
	setInt("retries", &c.Fetch.Retries)
	setString("backoff", &c.Fetch.Backoff)
	setInt("cores", &c.Render.Cores)
	setString("bitrate", &c.Render.Bitrate)
	setInt("render-retries", &c.Render.Retries)

	if hasFlag(cmd, "rate") && cmd.IsSet("rate") {
		c.Fetch.Rate = cmd.Float("rate")
	}
	if hasFlag(cmd, "clip-regex") && cmd.IsSet("clip-regex") {
		c.Pipeline.ClipRegex = cmd.StringSlice("clip-regex")
	}
}

// hasFlag reports whether name is defined on cmd or one of its ancestors.
func hasFlag(cmd *cli.Command, name string) bool {
	for _, c := range cmd.Lineage() {
		for _, f := range c.Flags {
			for _, n := range f.Names() {
				if n == name {
					return true
				}
			}
		}
	}
	return false
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
