package tasks

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
)

const (
	rawPrefix     = "raw-"
	rawExt        = ".mkv"
	partialPrefix = ".partial-"
)

// RawArtifact is the unsplit download of one item.
//
// The Fetch stage owns it until the hand-off to the Segment stage. From then on it is
// reference counted: the Segment stage holds one reference while emitting jobs and every
// emitted job holds one more. The file is deleted when the last reference is released.
type RawArtifact struct {
	ItemID   string
	Path     string
	Duration time.Duration
	Meta     models.Metadata

	refs     atomic.Int32
	registry *artifactRegistry
}

func (a *RawArtifact) retain() {
	a.refs.Add(1)
}

// release drops one reference and removes the file with the last one.
func (a *RawArtifact) release() {
	if a.refs.Add(-1) == 0 {
		a.registry.remove(a.Path)
	}
}

// RenderJob is one segment to render from a raw artifact into its final path.
type RenderJob struct {
	Artifact *RawArtifact
	Segment  models.Segment
	Album    string
	Segments int // segments planned for the item, for progress display
}

// artifactRegistry tracks raw downloads on disk and the most that were alive at once.
type artifactRegistry struct {
	mu   sync.Mutex
	live map[string]struct{}
	peak int
}

func newArtifactRegistry() *artifactRegistry {
	return &artifactRegistry{live: make(map[string]struct{})}
}

// add records path as live. Call it before the file is created.
func (r *artifactRegistry) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[path] = struct{}{}
	r.peak = max(r.peak, len(r.live))
}

// remove deletes the file and forgets it.
func (r *artifactRegistry) remove(path string) {
	os.Remove(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, path)
}

// Live returns the number of raw downloads currently on disk.
func (r *artifactRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Peak returns the high-water mark of live raw downloads.
func (r *artifactRegistry) Peak() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

// cleanup removes every file still registered, for runs that stop early.
func (r *artifactRegistry) cleanup() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.live))
	for p := range r.live {
		paths = append(paths, p)
	}
	r.live = make(map[string]struct{})
	r.mu.Unlock()

	for _, p := range paths {
		os.Remove(p)
	}
}
