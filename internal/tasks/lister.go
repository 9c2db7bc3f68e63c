package tasks

import (
	"context"
	"math/rand/v2"

	"github.com/desertthunder/ytclip/internal/services"
)

// list resolves every input to item ids and emits those the store does not consider finished.
//
// Without shuffling, items are emitted as each input resolves. Shuffling needs the whole set, so
// every input is resolved first. A playlist that cannot be resolved is skipped unless the failure
// is fatal.
func (e *Engine) list(ctx context.Context, inputs []string, out chan<- string) error {
	seen := make(map[string]bool)
	var pending []string

	for _, input := range inputs {
		ids, err := e.resolve(ctx, input)
		if err != nil {
			if fatal(err) {
				return err
			}
			e.logger.Error("failed to resolve playlist", "input", input, "err", err)
			continue
		}

		queued := 0
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			e.stats.listed.Add(1)

			done, err := e.opts.Store.Has(ctx, id)
			if err != nil {
				return storeErr(ctx, err)
			}
			if done {
				e.stats.skipped.Add(1)
				continue
			}
			queued++

			if e.opts.Shuffle {
				pending = append(pending, id)
				continue
			}
			if err := emit(ctx, out, id); err != nil {
				return err
			}
		}
		e.logger.Debug("resolved input", "input", input, "items", len(ids), "queued", queued)
		e.sendProgress(listedUpdate(input, len(ids), queued))
	}

	if e.opts.Shuffle {
		rand.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
		for _, id := range pending {
			if err := emit(ctx, out, id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) resolve(ctx context.Context, input string) ([]string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ids, err := e.opts.Fetcher.ListPlaylist(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, services.NewFailure(services.Unavailable, "playlist resolved to no items", nil)
	}
	return ids, nil
}

// emit hands v to the next stage, giving up when ctx is cancelled.
func emit[T any](ctx context.Context, out chan<- T, v T) error {
	select {
	case out <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
