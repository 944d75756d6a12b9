package events

import (
	"sync"
	"time"

	"github.com/msageha/selfcal/internal/model"
)

// Type is the kind of pipeline event.
type Type string

const (
	// StageStarted is published after a stage is initialized, before its
	// first command.
	StageStarted Type = "stage_started"
	// StageFinished is published when a stage ends, with Err set on failure.
	StageFinished Type = "stage_finished"
	// RunFinished is published once the quality report and journal are
	// written.
	RunFinished Type = "run_finished"
)

// Event describes one stage transition.
type Event struct {
	Type    Type
	Time    time.Time
	Step    model.Step
	Dir     string
	Elapsed time.Duration
	Err     error
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

// Bus delivers events through a buffered channel per subscriber. Publish
// never blocks; an event is dropped for a subscriber whose buffer is full.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]chan Event
	bufferSize  int
	closed      bool
	wg          sync.WaitGroup
}

// NewBus returns a bus with bufferSize slots per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[Type][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for the given types and returns a function that
// removes it.
func (b *Bus) Subscribe(fn Subscriber, types ...Type) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range ch {
			deliver(fn, e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed {
				return
			}
			for _, t := range types {
				subs := b.subscribers[t]
				for i, c := range subs {
					if c == ch {
						b.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
						break
					}
				}
			}
			close(ch)
		})
	}
}

// deliver keeps a panicking subscriber from stopping its delivery loop.
func deliver(fn Subscriber, e Event) {
	defer func() { _ = recover() }()
	fn(e)
}

// Publish stamps e and hands it to every subscriber of its type.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[e.Type] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close stops delivery and waits until every subscriber has drained the
// events already queued for it.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	seen := make(map[chan Event]bool)
	for t, subs := range b.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
		delete(b.subscribers, t)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
