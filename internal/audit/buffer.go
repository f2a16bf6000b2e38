package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"devsettings/internal/logger"
	"devsettings/internal/store"
)

// Buffer collects events in memory and periodically flushes them
// to the _audit_events table in a batch insert.
type Buffer struct {
	mu      sync.Mutex
	events  []Event
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewBuffer creates a buffer that flushes on a timer or when full.
func NewBuffer(s *store.Store, maxSize int, flushIntervalMs int) *Buffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 500
	}
	b := &Buffer{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	b.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	b.wg.Add(1)
	go b.run()
	return b
}

func (b *Buffer) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.Flush(context.Background())
		}
	}
}

// Record implements Recorder.
func (b *Buffer) Record(_ context.Context, action, appSlug, userID string, metadata map[string]any) {
	b.Enqueue(NewEvent(action, appSlug, userID, metadata))
}

// Enqueue adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (b *Buffer) Enqueue(event Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	shouldFlush := len(b.events) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.Flush(context.Background())
		}()
	}
}

// Pending returns the number of buffered events.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush writes all buffered events to the database in a single batch insert.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	log := logger.Named("audit")

	cols := []string{"id", "action", "app_slug", "user_id", "metadata"}
	pb := b.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, e := range batch {
		var meta any
		if e.Metadata != nil {
			raw, _ := json.Marshal(e.Metadata)
			meta = string(raw)
		}
		ph := []string{pb.Add(e.ID), pb.Add(e.Action), pb.Add(e.AppSlug), pb.Add(e.UserID), pb.Add(meta)}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _audit_events (%s) VALUES %s", strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := store.Exec(ctx, b.store.DB, sqlStr, pb.Params()...); err != nil {
		log.Error("audit insert failed", zap.Int("events", len(batch)), zap.Error(err))
	}
}

// Stop halts the background ticker and flushes remaining events.
func (b *Buffer) Stop() {
	b.ticker.Stop()
	close(b.done)
	b.wg.Wait()
	b.Flush(context.Background())
}
