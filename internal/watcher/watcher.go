// Package watcher consumes object-storage upload notifications and feeds
// them to the ingestion pipeline.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/visionaree/visionaree-server/internal/objectstore"
)

// Handler processes one upload event. Errors are logged and do not stop
// the watcher; the event source re-delivers on its own schedule.
type Handler func(ctx context.Context, ev objectstore.UploadEvent) error

type Watcher struct {
	objects        objectstore.Store
	logger         *slog.Logger
	reconnectDelay time.Duration
}

func New(objects objectstore.Store, logger *slog.Logger) *Watcher {
	return &Watcher{
		objects:        objects,
		logger:         logger,
		reconnectDelay: 5 * time.Second,
	}
}

// Run consumes upload events until ctx is cancelled, re-subscribing when
// the notification stream drops.
func (w *Watcher) Run(ctx context.Context, handle Handler) {
	for {
		if ctx.Err() != nil {
			return
		}

		events, err := w.objects.Listen(ctx)
		if err != nil {
			w.logger.Error("failed to subscribe to upload events", "error", err)
		} else {
			w.logger.Info("watching for uploads")
			for ev := range events {
				w.logger.Info("upload event", "key", ev.Key)
				if err := handle(ctx, ev); err != nil {
					w.logger.Error("failed to process upload", "key", ev.Key, "error", err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
		}
	}
}
