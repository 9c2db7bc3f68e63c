package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/preflight"
	"github.com/desertthunder/ytclip/internal/repositories"
	"github.com/desertthunder/ytclip/internal/segments"
	"github.com/desertthunder/ytclip/internal/shared"
	"github.com/desertthunder/ytclip/internal/tasks"
	"github.com/desertthunder/ytclip/internal/ui"
)

func runCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Fetch, split and render every pending item of the given playlists",
		ArgsUsage: "[playlist or item ids...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "split",
				Usage:   "Split mode: full (whole items) or clips (description timestamps)",
				Sources: cli.EnvVars(shared.EnvPrefix + "SPLIT"),
			},
			&cli.BoolFlag{
				Name:    "shuffle",
				Usage:   "Process items in random order",
				Sources: cli.EnvVars(shared.EnvPrefix + "SHUFFLE"),
			},
			&cli.StringSliceFlag{
				Name:    "clip-regex",
				Usage:   "Segment rule with named groups 'time' and 'title'; repeat for more, replaces the defaults",
				Sources: cli.EnvVars(shared.EnvPrefix + "CLIP_REGEX"),
			},
			&cli.BoolFlag{
				Name:    "fallback-whole",
				Usage:   "Render the whole item when no segments are found",
				Sources: cli.EnvVars(shared.EnvPrefix + "FALLBACK_WHOLE"),
			},
			&cli.BoolFlag{
				Name:    "title-case",
				Usage:   "Title-case segment titles",
				Sources: cli.EnvVars(shared.EnvPrefix + "TITLE_CASE"),
			},
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory for rendered clips",
				Sources: cli.EnvVars(shared.EnvPrefix + "OUTPUT_DIR"),
			},
			&cli.StringFlag{
				Name:    "ext",
				Usage:   "Output extension: mka, mkv, ogg or webm",
				Sources: cli.EnvVars(shared.EnvPrefix + "EXT"),
			},
			&cli.StringFlag{
				Name:    "cache",
				Usage:   "Directory for the completion store, lock and temp files",
				Sources: cli.EnvVars(shared.EnvPrefix + "CACHE"),
			},
			&cli.IntFlag{
				Name:    "retries",
				Usage:   "Fetch retries for transient failures",
				Sources: cli.EnvVars(shared.EnvPrefix + "RETRIES"),
			},
			&cli.StringFlag{
				Name:    "backoff",
				Usage:   "Initial fetch backoff, doubled per attempt (e.g. 2s)",
				Sources: cli.EnvVars(shared.EnvPrefix + "BACKOFF"),
			},
			&cli.FloatFlag{
				Name:    "rate",
				Usage:   "Maximum fetch starts per second, 0 for unlimited",
				Sources: cli.EnvVars(shared.EnvPrefix + "RATE"),
			},
			&cli.IntFlag{
				Name:    "cores",
				Aliases: []string{"j"},
				Usage:   "Render workers, 0 for one per CPU",
				Sources: cli.EnvVars(shared.EnvPrefix + "CORES"),
			},
			&cli.StringFlag{
				Name:    "bitrate",
				Usage:   "Opus bitrate such as 96K",
				Sources: cli.EnvVars(shared.EnvPrefix + "BITRATE"),
			},
			&cli.IntFlag{
				Name:    "render-retries",
				Usage:   "Render retries per segment",
				Sources: cli.EnvVars(shared.EnvPrefix + "RENDER_RETRIES"),
			},
		},
		Action: r.Run,
	}
}

// Run executes the pipeline for the ids given as arguments, or pipeline.ids from the config.
//
// Preflight failures, a held lock and an unusable store are fatal. Item and segment failures are
// reported in the summary and do not fail the command.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		ids = config.Pipeline.IDs
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: no playlist or item ids given", shared.ErrMissingArgument)
	}

	if err := preflight.Err(r.preflight(config)); err != nil {
		return err
	}

	lock, err := shared.AcquireRunLock(config.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := repositories.OpenCompletionStore(ctx, config.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	fetcher, err := r.newFetcher()
	if err != nil {
		return err
	}
	transcoder, err := r.newTranscoder(config.TempDir())
	if err != nil {
		return err
	}

	rules, err := segments.CompileRules(config.Pipeline.ClipRegex)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	bitrate, err := shared.ParseBitrate(config.Render.Bitrate)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	engine, err := tasks.NewEngine(tasks.EngineOpts{
		Store:         store,
		Fetcher:       fetcher,
		Transcoder:    transcoder,
		Parser:        segments.NewParser(segments.ParserOpts{Rules: rules, TitleCase: config.Pipeline.TitleCase}),
		Logger:        r.logger,
		Progress:      progress,
		OutputDir:     config.Output.Dir,
		TempDir:       config.TempDir(),
		Ext:           config.Extension(),
		Split:         config.Pipeline.Split == shared.SplitClips,
		Shuffle:       config.Pipeline.Shuffle,
		FallbackWhole: config.Pipeline.FallbackWhole,
		Workers:       config.Workers(),
		Bitrate:       bitrate,
		FetchRetries:  config.Fetch.Retries,
		FetchBackoff:  config.FetchBackoff(),
		FetchRate:     config.Fetch.Rate,
		RenderRetries: config.Render.Retries,
		RenderBackoff: config.FetchBackoff(),
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.FollowProgress(r.output, r.palette, progress)
	}()

	result, err := engine.Run(ctx, ids)
	close(progress)
	<-done
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	return r.writePlain("\n%s\n", ui.RunSummary(r.palette, result))
}
