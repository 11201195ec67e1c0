// Package watcher detects job completion through the filesystem, which is
// the only rendezvous point between a worker and an unrelated waiting
// process. The primary mechanism is filesystem change notification on the
// jobs directory; when that cannot be set up it degrades transparently to
// exponential back-off polling. Correctness never depends on which
// mechanism is active: every wakeup is followed by a direct check of the
// artifact of interest, since events can be coalesced, delayed or absent.
package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// basePollInterval keeps waiting on a fast job low-latency.
	basePollInterval = 50 * time.Millisecond

	// maxPollInterval keeps waiting on a slow job low-overhead. It also
	// caps the event-driven watcher's safety re-check, guarding against
	// missed notifications.
	maxPollInterval = 2 * time.Second
)

// Watcher delivers wakeups whenever the jobs directory may have changed.
// Wakeups carry no payload; the caller re-inspects whatever files it cares
// about.
type Watcher interface {
	// Changes returns the wakeup channel. It is never closed; callers
	// select against their own cancellation.
	Changes() <-chan struct{}

	// MarkProgress tells the Watcher the caller found new information on
	// the last wakeup. The polling fallback uses it to reset its back-off;
	// the event-driven implementation ignores it.
	MarkProgress()

	Close() error
}

// New returns an event-driven Watcher for dir, falling back to polling
// when notification setup fails. The fallback is transparent: callers
// cannot observe which mechanism is active.
func New(dir string) Watcher {
	w, err := newFsWatcher(dir)
	if err != nil {
		return newPollWatcher()
	}

	return w
}

type fsWatcher struct {
	fsw *fsnotify.Watcher
	ch  chan struct{}

	done chan struct{}
}

func newFsWatcher(dir string) (*fsWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(dir); err != nil {
		fsw.Close()

		return nil, err
	}

	w := &fsWatcher{
		fsw:  fsw,
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go w.forward()

	return w, nil
}

// forward coalesces raw fsnotify events into wakeups and injects a wakeup
// at the safety interval so a missed event cannot stall the caller
// forever.
func (w *fsWatcher) forward() {
	ticker := time.NewTicker(maxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			w.wake()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			// Delivery errors degrade latency, not correctness; the next
			// safety tick re-checks regardless.
		case <-ticker.C:
			w.wake()
		}
	}
}

func (w *fsWatcher) wake() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *fsWatcher) Changes() <-chan struct{} {
	return w.ch
}

func (w *fsWatcher) MarkProgress() {}

func (w *fsWatcher) Close() error {
	close(w.done)

	return w.fsw.Close()
}

// pollWatcher emits wakeups on a timer that backs off exponentially while
// nothing changes and snaps back to the base interval on progress.
type pollWatcher struct {
	ch       chan struct{}
	progress chan struct{}
	done     chan struct{}
}

func newPollWatcher() *pollWatcher {
	w := &pollWatcher{
		ch:       make(chan struct{}, 1),
		progress: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	go w.loop()

	return w
}

func (w *pollWatcher) loop() {
	delay := basePollInterval

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-w.progress:
			delay = basePollInterval
		case <-timer.C:
			select {
			case w.ch <- struct{}{}:
			default:
			}

			delay = min(delay*2, maxPollInterval)
		}

		timer.Reset(delay)
	}
}

func (w *pollWatcher) Changes() <-chan struct{} {
	return w.ch
}

func (w *pollWatcher) MarkProgress() {
	select {
	case w.progress <- struct{}{}:
	default:
	}
}

func (w *pollWatcher) Close() error {
	close(w.done)

	return nil
}
