package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/shared"
)

// maxNameAttempts bounds the " (n)" suffix search.
const maxNameAttempts = 10000

// assignOutputPaths gives every segment a final path "<title><ext>", or "<title> (n)<ext>" when
// that path is already used on disk, by a placeholder, by another segment of this plan or by any
// segment recorded in the store. Only the Segment stage assigns names, so no locking is needed.
func (e *Engine) assignOutputPaths(ctx context.Context, segs []models.Segment) error {
	reserved := make(map[string]bool, len(segs))
	for i := range segs {
		path, err := e.freePath(ctx, segs[i].Title, reserved)
		if err != nil {
			return err
		}
		reserved[path] = true
		segs[i].OutputPath = path
	}
	return nil
}

func (e *Engine) freePath(ctx context.Context, title string, reserved map[string]bool) (string, error) {
	for n := 1; n <= maxNameAttempts; n++ {
		path := candidatePath(e.opts.OutputDir, title, e.opts.Ext, n)
		if reserved[path] {
			continue
		}
		taken, err := e.opts.Store.OutputPathTaken(ctx, path)
		if err != nil {
			return "", storeErr(ctx, err)
		}
		if taken {
			continue
		}
		if exists(path) || exists(placeholderPath(path)) {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: no free output name for %q", shared.ErrInvalidInput, title)
}

func candidatePath(dir, title, ext string, n int) string {
	if n <= 1 {
		return filepath.Join(dir, title+ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s (%d)%s", title, n, ext))
}

// placeholderPath is where a zero-byte marker goes when the segment for final cannot be rendered.
func placeholderPath(final string) string {
	return strings.TrimSuffix(final, filepath.Ext(final)) + shared.PlaceholderExt
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
