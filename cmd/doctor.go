package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/preflight"
	"github.com/desertthunder/ytclip/internal/shared"
	"github.com/desertthunder/ytclip/internal/ui"
)

func doctorCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check that executables and directories are usable",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory for rendered clips",
				Sources: cli.EnvVars(shared.EnvPrefix + "OUTPUT_DIR"),
			},
			&cli.StringFlag{
				Name:    "cache",
				Usage:   "Directory for the completion store, lock and temp files",
				Sources: cli.EnvVars(shared.EnvPrefix + "CACHE"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Doctor,
	}
}

// Doctor runs every preflight check and prints the results. It fails when any check fails.
func (r *Runner) Doctor(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	results := r.preflight(config)

	if cmd.Bool("json") {
		if err := r.writeJSON(results, true); err != nil {
			return err
		}
		return preflight.Err(results)
	}

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		status := r.palette.OK("ok")
		if !res.Passed {
			status = r.palette.Err("FAIL")
		}
		rows = append(rows, []string{res.Name, status, res.Detail})
	}
	if err := r.writePlain("%s\n", ui.RenderTable([]string{"Check", "Status", "Detail"}, rows, nil)); err != nil {
		return err
	}
	return preflight.Err(results)
}
