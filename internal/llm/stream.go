package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

type eventStream struct {
	ctx       context.Context
	cancel    context.CancelFunc
	events    chan Event
	closeOnce sync.Once
}

// newEventStream runs fn on its own goroutine and exposes the events it sends
// as a Stream. An error returned by fn is delivered as the final Recv error.
func newEventStream(ctx context.Context, fn func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
	}
	go func() {
		defer close(s.events)
		if err := fn(ctx, s.events); err != nil {
			select {
			case s.events <- Event{Type: EventError, Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		if ev.Type == EventError {
			return Event{}, ev.Err
		}
		return ev, nil
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	}
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Unblock a producer still sending.
		go func() {
			for range s.events {
			}
		}()
	})
	return nil
}

// CollectText reads a stream to the end and returns the concatenated text.
func CollectText(stream Stream) (string, *Usage, error) {
	defer stream.Close()
	var b strings.Builder
	var usage *Usage
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), usage, nil
		}
		if err != nil {
			return b.String(), usage, err
		}
		switch ev.Type {
		case EventTextDelta:
			b.WriteString(ev.Text)
		case EventUsage:
			usage = ev.Use
		case EventDone:
			return b.String(), usage, nil
		}
	}
}
