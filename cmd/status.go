package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/formatter"
	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/repositories"
	"github.com/desertthunder/ytclip/internal/shared"
	"github.com/desertthunder/ytclip/internal/ui"
)

func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show what the completion store knows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cache",
				Usage:   "Directory of the completion store",
				Sources: cli.EnvVars(shared.EnvPrefix + "CACHE"),
			},
			&cli.BoolFlag{
				Name:  "items",
				Usage: "List items, not only the summary",
			},
			&cli.StringSliceFlag{
				Name:  "state",
				Usage: "Only list items in these states (pending, fetched, done, failed)",
			},
			&cli.StringFlag{
				Name:  "segments",
				Usage: "List the planned segments of one item",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json or csv",
				Value:   formatter.FormatTable,
			},
			&cli.StringFlag{
				Name:  "save",
				Usage: "Write the output to this file instead of stdout",
			},
		},
		Action: r.Status,
	}
}

// Status prints per-state counts and optionally items or one item's segments.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	format := cmd.String("format")
	switch format {
	case formatter.FormatTable, formatter.FormatJSON, formatter.FormatCSV:
	default:
		return fmt.Errorf("%w: --format must be table, json or csv, got %q", shared.ErrInvalidFlag, format)
	}

	var states []models.State
	for _, s := range cmd.StringSlice("state") {
		state, err := models.ParseState(s)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		states = append(states, state)
	}

	store, err := repositories.OpenCompletionStore(ctx, config.StorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	var data []byte
	if id := cmd.String("segments"); id != "" {
		data, err = r.segmentsReport(ctx, store, id, format)
	} else {
		data, err = r.statusReport(ctx, store, cmd.Bool("items") || len(states) > 0, states, format)
	}
	if err != nil {
		return err
	}

	if path := cmd.String("save"); path != "" {
		if err := formatter.WriteExport(path, data); err != nil {
			return err
		}
		r.logger.Info("status written", "path", path)
		return nil
	}
	return r.writeBytes(data)
}

func (r *Runner) statusReport(ctx context.Context, store *repositories.CompletionStore, withItems bool, states []models.State, format string) ([]byte, error) {
	summary, err := store.Summary(ctx)
	if err != nil {
		return nil, err
	}

	var items []models.Item
	if withItems {
		if items, err = store.List(ctx, states...); err != nil {
			return nil, err
		}
	}

	switch format {
	case formatter.FormatJSON:
		return formatter.StatusToJSON(summary, items)
	case formatter.FormatCSV:
		return formatter.ItemsToCSV(items)
	}

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}

	out := r.palette.Title("Completion store") + " " + r.palette.Help(fmt.Sprintf("(schema version %d)", version)) + "\n" +
		ui.RenderTable([]string{"State", "Count"}, formatter.SummaryRows(summary), []ui.Alignment{ui.AlignLeft, ui.AlignRight}) + "\n"
	if withItems {
		out += "\n" + ui.RenderTable(formatter.ItemHeaders(), formatter.ItemRows(items), nil) + "\n"
	}
	return []byte(out), nil
}

func (r *Runner) segmentsReport(ctx context.Context, store *repositories.CompletionStore, id, format string) ([]byte, error) {
	segs, err := store.Segments(ctx, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case formatter.FormatCSV:
		return formatter.SegmentsToCSV(segs)
	case formatter.FormatJSON:
		return formatter.SegmentsToJSON(segs)
	}
	return []byte(ui.RenderTable(formatter.SegmentHeaders(), formatter.SegmentRows(segs), nil) + "\n"), nil
}
