package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

func TestDispatcher_PerItemOrder(t *testing.T) {
	t.Parallel()

	var (
		mu   stdsync.Mutex
		seen = map[archive.Path][]EventType{}
	)

	d := NewDispatcher(context.Background(), 4, func(_ context.Context, ev Event) error {
		// Give later events a chance to overtake if ordering were broken.
		if ev.Type == EventSyncing {
			time.Sleep(5 * time.Millisecond)
		}

		mu.Lock()
		seen[ev.Ref.Origin] = append(seen[ev.Ref.Origin], ev.Type)
		mu.Unlock()

		return nil
	}, testLogger(t))

	for _, p := range []string{"nfc/a.nfc", "nfc/b.nfc", "nfc/c.nfc"} {
		ref := archive.Classify(archive.Path(p))
		d.Submit(Event{Type: EventSyncing, Ref: ref})
		d.Submit(Event{Type: EventImported, Ref: ref})
	}

	d.Wait()

	for _, p := range []archive.Path{"nfc/a.nfc", "nfc/b.nfc", "nfc/c.nfc"} {
		assert.Equal(t, []EventType{EventSyncing, EventImported}, seen[p], p)
	}
}

func TestDispatcher_ShadowQueuesBehindOrigin(t *testing.T) {
	t.Parallel()

	var order []archive.Path

	release := make(chan struct{})

	d := NewDispatcher(context.Background(), 4, func(_ context.Context, ev Event) error {
		if !ev.Ref.IsShadow() {
			<-release
		}

		order = append(order, ev.Ref.Path)

		return nil
	}, testLogger(t))

	d.Submit(Event{Type: EventImported, Ref: archive.Classify("nfc/card.nfc")})
	d.Submit(Event{Type: EventImported, Ref: archive.Classify("nfc/card.shd")})
	close(release)
	d.Wait()

	assert.Equal(t, []archive.Path{"nfc/card.nfc", "nfc/card.shd"}, order)
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32

	d := NewDispatcher(context.Background(), 2, func(context.Context, Event) error {
		n := active.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
		active.Add(-1)

		return nil
	}, testLogger(t))

	for _, p := range []string{"nfc/1.nfc", "nfc/2.nfc", "nfc/3.nfc", "nfc/4.nfc", "nfc/5.nfc"} {
		d.Submit(Event{Type: EventImported, Ref: archive.Classify(archive.Path(p))})
	}

	d.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestDispatcher_SurvivesPanicsAndErrors(t *testing.T) {
	t.Parallel()

	var handled atomic.Int32

	d := NewDispatcher(context.Background(), 1, func(_ context.Context, ev Event) error {
		handled.Add(1)

		switch ev.Type {
		case EventSyncing:
			panic("handler bug")
		case EventImported:
			return errors.New("reload failed")
		default:
			return nil
		}
	}, testLogger(t))

	ref := archive.Classify("nfc/a.nfc")
	d.Submit(Event{Type: EventSyncing, Ref: ref})
	d.Submit(Event{Type: EventImported, Ref: ref})
	d.Submit(Event{Type: EventExported, Ref: ref})
	d.Wait()

	assert.Equal(t, int32(3), handled.Load())
}

func TestDispatcher_WaitWithoutEvents(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(context.Background(), 0, func(context.Context, Event) error { return nil }, testLogger(t))
	d.Wait()
}
