package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/formatter"
	"github.com/desertthunder/ytclip/internal/segments"
	"github.com/desertthunder/ytclip/internal/shared"
	"github.com/desertthunder/ytclip/internal/ui"
)

func segmentsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "segments",
		Usage: "Show the segments the parser detects in a description, without fetching anything",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "Description text file, '-' for stdin",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:    "clip-regex",
				Usage:   "Segment rule with named groups 'time' and 'title'; replaces the defaults",
				Sources: cli.EnvVars(shared.EnvPrefix + "CLIP_REGEX"),
			},
			&cli.BoolFlag{
				Name:    "title-case",
				Usage:   "Title-case segment titles",
				Sources: cli.EnvVars(shared.EnvPrefix + "TITLE_CASE"),
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, csv or text",
				Value:   formatter.FormatTable,
			},
		},
		Action: r.Segments,
	}
}

// Segments parses a description file with the configured rules and prints the result.
func (r *Runner) Segments(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	description, err := readInput(cmd.String("file"))
	if err != nil {
		return err
	}

	rules, err := segments.CompileRules(config.Pipeline.ClipRegex)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	parser := segments.NewParser(segments.ParserOpts{Rules: rules, TitleCase: config.Pipeline.TitleCase})
	segs := parser.Segments("", description)

	switch format := cmd.String("format"); format {
	case formatter.FormatJSON:
		data, err := formatter.SegmentsToJSON(segs)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case formatter.FormatCSV:
		data, err := formatter.SegmentsToCSV(segs)
		if err != nil {
			return err
		}
		return r.writeBytes(data)
	case "text":
		return r.writeBytes(formatter.SegmentsToText(segs))
	case formatter.FormatTable:
		if len(segs) == 0 {
			return r.writePlain("%s\n", r.palette.Warn("No segments detected"))
		}
		return r.writePlain("%s\n", ui.RenderTable(formatter.SegmentHeaders()[:4], formatter.SegmentRows(segs), nil))
	default:
		return fmt.Errorf("%w: --format must be table, json, csv or text, got %q", shared.ErrInvalidFlag, format)
	}
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read description: %w", err)
	}
	return string(data), nil
}
