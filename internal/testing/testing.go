// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/services"
)

// FakeItem scripts how [FakeFetcher] answers for one item.
type FakeItem struct {
	Meta models.Metadata

	// FetchErrs are returned by successive FetchAudio calls; once exhausted, fetches succeed.
	FetchErrs []error
	MetaErr   error
}

// FakeFetcher is an in-memory [services.Fetcher].
//
// Ids listed in Playlists expand to their entries; any other id resolves to itself.
type FakeFetcher struct {
	Playlists map[string][]string
	Items     map[string]*FakeItem
	Delay     time.Duration

	mu      sync.Mutex
	fetches map[string]int
}

func (f *FakeFetcher) ListPlaylist(ctx context.Context, id string) ([]string, error) {
	if ids, ok := f.Playlists[id]; ok {
		return ids, nil
	}
	return []string{id}, nil
}

func (f *FakeFetcher) Metadata(ctx context.Context, id string) (models.Metadata, error) {
	item, ok := f.Items[id]
	if !ok {
		return models.Metadata{}, services.NewFailure(services.Unavailable, "Video unavailable", nil)
	}
	if item.MetaErr != nil {
		return models.Metadata{}, item.MetaErr
	}
	meta := item.Meta
	meta.ID = id
	return meta, nil
}

func (f *FakeFetcher) FetchAudio(ctx context.Context, id, dest string) error {
	f.mu.Lock()
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	n := f.fetches[id]
	f.fetches[id]++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if item, ok := f.Items[id]; ok && n < len(item.FetchErrs) {
		return item.FetchErrs[n]
	}
	return os.WriteFile(dest, []byte("audio:"+id), 0o600)
}

// Fetches returns how many times FetchAudio was called for id.
func (f *FakeFetcher) Fetches(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[id]
}

// FakeTranscoder is a [services.Transcoder] that writes the segment title to the destination.
//
// It fails when the source file is missing, which catches raw files deleted too early.
type FakeTranscoder struct {
	// Fail, when set, is consulted before every render.
	Fail  func(req services.RenderRequest) error
	Delay time.Duration

	mu          sync.Mutex
	requests    []services.RenderRequest
	inFlight    int
	maxInFlight int
}

func (f *FakeTranscoder) RenderSegment(ctx context.Context, req services.RenderRequest) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if f.Fail != nil {
		if err := f.Fail(req); err != nil {
			return err
		}
	}
	if _, err := os.Stat(req.Source); err != nil {
		return fmt.Errorf("source missing: %w", err)
	}
	return os.WriteFile(req.Dest, []byte(req.Title), 0o600)
}

// Requests returns a copy of every render request received so far.
func (f *FakeTranscoder) Requests() []services.RenderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]services.RenderRequest(nil), f.requests...)
}

// MaxInFlight returns the most renders that ran at the same time.
func (f *FakeTranscoder) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// WriteScript writes an executable shell script standing in for an external program.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := dir + string(os.PathSeparator) + name
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("Failed to write script %s: %v", path, err)
	}
	return path
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File should not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
