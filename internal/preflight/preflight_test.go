package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/desertthunder/ytclip/internal/shared"
	tu "github.com/desertthunder/ytclip/internal/testing"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir, false)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_Create(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	result := CheckDirectoryAccess("test", dir, true)
	if !result.Passed {
		t.Fatalf("expected pass after create, got: %s", result.Detail)
	}
	tu.AssertDirExists(t, dir)
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"), false)
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f, false)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	bin := t.TempDir()
	tu.WriteScript(t, bin, "youtube-dl", "exit 0")
	t.Setenv("PATH", bin)

	t.Run("falls back to later candidates", func(t *testing.T) {
		result := CheckBinary("Fetcher", "yt-dlp", "youtube-dl")
		if !result.Passed {
			t.Fatalf("expected pass, got: %s", result.Detail)
		}
		if result.Detail != filepath.Join(bin, "youtube-dl") {
			t.Errorf("detail = %q, want resolved path", result.Detail)
		}
	})

	t.Run("fails when nothing is found", func(t *testing.T) {
		result := CheckBinary("Transcoder", "ffmpeg")
		if result.Passed {
			t.Fatal("expected failure for missing ffmpeg")
		}
	})
}

func TestRunAll(t *testing.T) {
	bin := t.TempDir()
	tu.WriteScript(t, bin, "yt-dlp", "exit 0")
	t.Setenv("PATH", bin)

	root := t.TempDir()
	cfg := shared.DefaultConfig()
	cfg.Output.Dir = filepath.Join(root, "out")
	cfg.Output.Cache = filepath.Join(root, "cache")

	results := RunAll(cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if !Failed(results) {
		t.Fatal("expected failure without ffmpeg")
	}
	for _, r := range results {
		if r.Name != "Transcoder" && !r.Passed {
			t.Errorf("%s failed: %s", r.Name, r.Detail)
		}
	}
	tu.AssertDirExists(t, cfg.TempDir())

	err := Err(results)
	if !errors.Is(err, shared.ErrPreflightFailed) {
		t.Errorf("Err() = %v, want ErrPreflightFailed", err)
	}

	tu.WriteScript(t, bin, "ffmpeg", "exit 0")
	results = RunAll(cfg)
	if Failed(results) {
		t.Errorf("expected all checks to pass, got %+v", results)
	}
	if err := Err(results); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Errorf("expected nil results, got %+v", results)
	}
}
