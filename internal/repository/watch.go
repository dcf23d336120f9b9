package repository

import (
	"context"
	"sync"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"
)

// ListFunc runs the watched query once.
type ListFunc func(ctx context.Context) ([]models.Document, error)

// WatchCollection delivers an initial snapshot and then one snapshot per change
// published on feed for collection. Snapshots are delivered serially from a
// single goroutine. The returned func stops delivery and is idempotent.
func WatchCollection(
	ctx context.Context,
	feed domain.ChangeFeed,
	collection string,
	list ListFunc,
	onSnapshot domain.SnapshotFunc,
) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		pending = 1
	)
	signal := make(chan struct{}, 1)
	stop := make(chan struct{})

	notify := func() {
		mu.Lock()
		pending++
		mu.Unlock()
		select {
		case signal <- struct{}{}:
		default:
		}
	}

	unsubscribeFeed := func() {}
	if feed != nil {
		unsubscribeFeed = feed.SubscribeChanges(collection, notify)
	}
	signal <- struct{}{}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-signal:
			}

			for {
				mu.Lock()
				if pending == 0 {
					mu.Unlock()
					break
				}
				pending--
				mu.Unlock()

				docs, err := list(ctx)
				select {
				case <-stop:
					return
				case <-ctx.Done():
					return
				default:
				}
				onSnapshot(docs, err)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribeFeed()
			close(stop)
		})
	}, nil
}
