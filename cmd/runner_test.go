package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytclip/internal/formatter"
	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/preflight"
	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
	tu "github.com/desertthunder/ytclip/internal/testing"
)

func passingPreflight(*shared.Config) []preflight.Result {
	return []preflight.Result{{Name: "Fetcher", Passed: true, Detail: "/bin/yt-dlp"}}
}

func failingPreflight(*shared.Config) []preflight.Result {
	return []preflight.Result{
		{Name: "Fetcher", Passed: true, Detail: "/bin/yt-dlp"},
		{Name: "Transcoder", Detail: "none of ffmpeg found on PATH"},
	}
}

// testRunner wires fakes in place of yt-dlp and ffmpeg.
func testRunner(output io.Writer, fetcher *tu.FakeFetcher, check func(*shared.Config) []preflight.Result) *Runner {
	return NewRunner(RunnerOpts{
		Logger:     shared.NewLogger(io.Discard),
		Output:     output,
		Fetcher:    func() (services.Fetcher, error) { return fetcher, nil },
		Transcoder: func(string) (services.Transcoder, error) { return &tu.FakeTranscoder{}, nil },
		Preflight:  check,
	})
}

func runCLI(r *Runner, args ...string) error {
	app := &cli.Command{
		Name:     "ytclip",
		Flags:    globalFlags(),
		Commands: r.register(),
		Writer:   io.Discard,
	}
	return app.Run(context.Background(), append([]string{"ytclip"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output, ConfigPath: "/test/ytclip.toml"})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.configPath != "/test/ytclip.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.newFetcher == nil || runner.newTranscoder == nil || runner.preflight == nil {
				t.Error("expected default factories to be set")
			}
			if runner.config != nil {
				t.Error("expected config to be loaded lazily")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result := output.String(); result != "hello world" {
				t.Errorf("expected 'hello world', got %q", result)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := map[string]bool{"run": false, "setup": false, "status": false, "doctor": false, "segments": false}
		for _, cmd := range commands {
			if _, ok := want[cmd.Name]; ok {
				want[cmd.Name] = true
			}
		}
		for name, found := range want {
			if !found {
				t.Errorf("expected command %q to be registered", name)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("flags override env which overrides the file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "ytclip.toml")
		content := "[pipeline]\nsplit = \"full\"\n\n[output]\next = \"mka\"\n\n[fetch]\nretries = 5\nbackoff = \"1s\"\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("YTCLIP_RETRIES", "7")
		t.Setenv("YTCLIP_BITRATE", "128K")

		runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, failingPreflight)
		err := runCLI(runner, "--config", path, "run", "--ext", "webm", "--cache", filepath.Join(dir, "cache"), "vid1")
		if !errors.Is(err, shared.ErrPreflightFailed) {
			t.Fatalf("expected preflight failure, got %v", err)
		}

		cfg := runner.config
		if cfg == nil {
			t.Fatal("expected config to be loaded")
		}
		if cfg.Pipeline.Split != shared.SplitFull {
			t.Errorf("split = %q, want value from file", cfg.Pipeline.Split)
		}
		if cfg.Output.Ext != "webm" {
			t.Errorf("ext = %q, want flag value", cfg.Output.Ext)
		}
		if cfg.Fetch.Retries != 7 {
			t.Errorf("retries = %d, want env value", cfg.Fetch.Retries)
		}
		if cfg.Render.Bitrate != "128K" {
			t.Errorf("bitrate = %q, want env value", cfg.Render.Bitrate)
		}
		if cfg.Fetch.Backoff != "1s" {
			t.Errorf("backoff = %q, want value from file", cfg.Fetch.Backoff)
		}
		if cfg.Render.Retries != 2 {
			t.Errorf("render retries = %d, want default", cfg.Render.Retries)
		}
	})

	t.Run("explicit missing config is an error", func(t *testing.T) {
		runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
		err := runCLI(runner, "--config", filepath.Join(t.TempDir(), "nope.toml"), "doctor")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
		err := runCLI(runner, "run", "--bitrate", "96", "--cache", t.TempDir(), "vid1")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestRun(t *testing.T) {
	fetcher := func() *tu.FakeFetcher {
		return &tu.FakeFetcher{Items: map[string]*tu.FakeItem{
			"vid1": {Meta: models.Metadata{Title: "Album", Description: "00:00 Intro\n03:45 Verse\n", Duration: 6 * time.Minute}},
		}}
	}

	t.Run("requires ids", func(t *testing.T) {
		runner := testRunner(&bytes.Buffer{}, fetcher(), passingPreflight)
		err := runCLI(runner, "run", "--cache", t.TempDir())
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("renders clips and reports status", func(t *testing.T) {
		dir := t.TempDir()
		cache := filepath.Join(dir, "cache")
		out := filepath.Join(dir, "out")

		output := &bytes.Buffer{}
		runner := testRunner(output, fetcher(), passingPreflight)
		err := runCLI(runner, "run", "--cache", cache, "--output-dir", out, "--rate", "0", "--cores", "2", "vid1")
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(out, "Intro.ogg"))
		tu.AssertFileExists(t, filepath.Join(out, "Verse.ogg"))
		if !strings.Contains(output.String(), "Run complete") {
			t.Errorf("expected summary in output, got:\n%s", output.String())
		}

		output.Reset()
		runner = testRunner(output, fetcher(), passingPreflight)
		if err := runCLI(runner, "status", "--cache", cache, "--items", "--format", "json"); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		var report formatter.StatusReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("status output is not JSON: %v\n%s", err, output.String())
		}
		if report.Summary.Done != 1 || report.Summary.SegmentsDone != 2 {
			t.Errorf("unexpected summary: %+v", report.Summary)
		}
		if len(report.Items) != 1 || report.Items[0].Title != "Album" {
			t.Errorf("unexpected items: %+v", report.Items)
		}

		output.Reset()
		runner = testRunner(output, fetcher(), passingPreflight)
		if err := runCLI(runner, "status", "--cache", cache, "--segments", "vid1", "--format", "csv"); err != nil {
			t.Fatalf("status --segments failed: %v", err)
		}
		if lines := strings.Split(strings.TrimSpace(output.String()), "\n"); len(lines) != 3 {
			t.Errorf("expected header and 2 segments, got:\n%s", output.String())
		}

		output.Reset()
		runner = testRunner(output, fetcher(), passingPreflight)
		if err := runCLI(runner, "status", "--cache", cache); err != nil {
			t.Fatalf("status failed: %v", err)
		}
		if !strings.Contains(output.String(), "schema version 0") {
			t.Errorf("expected schema version in status table, got:\n%s", output.String())
		}
	})

	t.Run("refuses to run while the cache is locked", func(t *testing.T) {
		cache := t.TempDir()
		cfg := shared.DefaultConfig()
		cfg.Output.Cache = cache
		lock, err := shared.AcquireRunLock(cfg.LockPath())
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		runner := testRunner(&bytes.Buffer{}, fetcher(), passingPreflight)
		err = runCLI(runner, "run", "--cache", cache, "--output-dir", t.TempDir(), "vid1")
		if !errors.Is(err, shared.ErrLocked) {
			t.Errorf("expected ErrLocked, got %v", err)
		}
	})

	t.Run("stops on failed preflight", func(t *testing.T) {
		runner := testRunner(&bytes.Buffer{}, fetcher(), failingPreflight)
		err := runCLI(runner, "run", "--cache", t.TempDir(), "vid1")
		if !errors.Is(err, shared.ErrPreflightFailed) {
			t.Errorf("expected ErrPreflightFailed, got %v", err)
		}
	})
}

func TestStatus_InvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown format", args: []string{"--format", "xml"}},
		{name: "unknown state", args: []string{"--state", "lost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
			args := append([]string{"status", "--cache", t.TempDir()}, tt.args...)
			if err := runCLI(runner, args...); !errors.Is(err, shared.ErrInvalidFlag) {
				t.Errorf("expected ErrInvalidFlag, got %v", err)
			}
		})
	}
}

func TestDoctor(t *testing.T) {
	output := &bytes.Buffer{}
	runner := testRunner(output, &tu.FakeFetcher{}, failingPreflight)

	err := runCLI(runner, "doctor", "--cache", t.TempDir())
	if !errors.Is(err, shared.ErrPreflightFailed) {
		t.Errorf("expected ErrPreflightFailed, got %v", err)
	}
	for _, want := range []string{"Fetcher", "ok", "Transcoder", "FAIL"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("doctor output missing %q:\n%s", want, output.String())
		}
	}
}

func TestSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc.txt")
	if err := os.WriteFile(path, []byte("Tracklist\n00:00 Intro\n03:45 Verse\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("text", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := testRunner(output, &tu.FakeFetcher{}, passingPreflight)
		if err := runCLI(runner, "segments", "--file", path, "--format", "text"); err != nil {
			t.Fatalf("segments failed: %v", err)
		}
		if got, want := output.String(), "1. 0:00-3:45 Intro\n2. 3:45-end Verse\n"; got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("custom rule", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := testRunner(output, &tu.FakeFetcher{}, passingPreflight)
		err := runCLI(runner, "segments", "--file", path, "--format", "text",
			"--clip-regex", `^(?P<title>\w+) (?P<time>\d+:\d+)$`)
		if err != nil {
			t.Fatalf("segments failed: %v", err)
		}
		if got := output.String(); !strings.Contains(got, "No segments") {
			t.Errorf("expected no matches with a custom rule, got %q", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
		if err := runCLI(runner, "segments", "--file", filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestSetupConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ytclip.toml")

	runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
	if err := runCLI(runner, "--config", path, "setup", "config"); err != nil {
		t.Fatalf("setup config failed: %v", err)
	}
	tu.AssertFileExists(t, path)

	if _, err := shared.LoadConfig(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}

	runner = testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
	if err := runCLI(runner, "--config", path, "setup", "config"); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestSetupDatabase(t *testing.T) {
	cache := t.TempDir()
	runner := testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
	if err := runCLI(runner, "setup", "database", "--cache", cache); err != nil {
		t.Fatalf("setup database failed: %v", err)
	}
	tu.AssertFileExists(t, filepath.Join(cache, "ytclip.db"))

	t.Run("rollback", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := testRunner(output, &tu.FakeFetcher{}, passingPreflight)
		if err := runCLI(runner, "setup", "database", "--cache", cache, "--rollback"); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if !strings.Contains(output.String(), "schema version -1") {
			t.Errorf("expected schema version -1 after rollback, got %q", output.String())
		}

		runner = testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
		if err := runCLI(runner, "setup", "database", "--cache", cache, "--rollback"); err == nil {
			t.Error("expected an error with nothing left to roll back")
		}

		runner = testRunner(&bytes.Buffer{}, &tu.FakeFetcher{}, passingPreflight)
		if err := runCLI(runner, "setup", "database", "--cache", cache); err != nil {
			t.Fatalf("re-applying migrations failed: %v", err)
		}
	})
}
