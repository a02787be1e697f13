package llm

import (
	"context"
	"sync"
)

// MockTurn scripts one response of a MockProvider.
type MockTurn struct {
	Text  string
	Err   error
	Delay <-chan struct{} // if set, the response waits until it is closed
}

// MockProvider replays scripted turns and records every request.
type MockProvider struct {
	mu       sync.Mutex
	turns    []MockTurn
	requests []Request
}

// NewMockProvider returns a provider that answers with turns in order. Once
// the script is exhausted the last turn repeats.
func NewMockProvider(turns ...MockTurn) *MockProvider {
	return &MockProvider{turns: turns}
}

func (m *MockProvider) Name() string {
	return "Mock"
}

// Requests returns the requests seen so far.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var turn MockTurn
	if n := len(m.turns); n > 0 {
		idx := len(m.requests) - 1
		if idx >= n {
			idx = n - 1
		}
		turn = m.turns[idx]
	}
	m.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay != nil {
			select {
			case <-turn.Delay:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if turn.Err != nil {
			return turn.Err
		}
		// Split the reply so consumers see more than one delta.
		runes := []rune(turn.Text)
		half := len(runes) / 2
		for _, chunk := range []string{string(runes[:half]), string(runes[half:])} {
			if chunk != "" {
				events <- Event{Type: EventTextDelta, Text: chunk}
			}
		}
		events <- Event{Type: EventUsage, Use: &Usage{InputTokens: 1, OutputTokens: len(runes)}}
		events <- Event{Type: EventDone}
		return nil
	}), nil
}
