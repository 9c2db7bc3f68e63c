package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for cfg. Directories are created when missing.
func RunAll(cfg *shared.Config) []Result {
	if cfg == nil {
		return nil
	}
	return []Result{
		CheckBinary("Fetcher", services.FetcherBinaries...),
		CheckBinary("Transcoder", services.FfmpegBinary),
		CheckDirectoryAccess("Output directory", cfg.Output.Dir, true),
		CheckDirectoryAccess("Cache directory", cfg.Output.Cache, true),
		CheckDirectoryAccess("Temp directory", cfg.TempDir(), true),
	}
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

// Err summarizes failed results as an [shared.ErrPreflightFailed] error, nil when all passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrPreflightFailed, strings.Join(failed, "; "))
}

// CheckBinary passes when the first of candidates is found on PATH.
func CheckBinary(name string, candidates ...string) Result {
	path, err := services.LookupFirst(candidates...)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("none of %s found on PATH", strings.Join(candidates, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string, create bool) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if create {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: create: %v)", path, err)}
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
