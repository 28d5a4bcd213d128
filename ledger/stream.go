package ledger

import (
	"context"
	"sync"

	"fundtreasury/core/types"
)

const streamHistoryLimit = 1024

// Commit is what subscribers and sinks observe after an operation is durable.
type Commit struct {
	Entry     Entry          `json:"entry"`
	Events    []*types.Event `json:"events"`
	Transfers []Transfer     `json:"transfers,omitempty"`
}

type stream struct {
	mu      sync.Mutex
	subs    map[uint64]chan Commit
	nextID  uint64
	history []Commit
}

func newStream() *stream {
	return &stream{subs: make(map[uint64]chan Commit)}
}

func (s *stream) publish(commit Commit) {
	s.mu.Lock()
	s.history = append(s.history, commit)
	if len(s.history) > streamHistoryLimit {
		excess := len(s.history) - streamHistoryLimit
		trimmed := make([]Commit, streamHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends stay under mu so cancel and close never close a channel
	// mid-send. Slow subscribers drop commits rather than block.
	for _, ch := range s.subs {
		select {
		case ch <- commit:
		default:
		}
	}
	s.mu.Unlock()
}

// subscribe registers a subscriber and returns the buffered commits with a
// sequence greater than since.
func (s *stream) subscribe(ctx context.Context, since uint64) (<-chan Commit, func(), []Commit) {
	updates := make(chan Commit, 64)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]Commit, 0, len(s.history))
	for _, commit := range s.history {
		if commit.Entry.Sequence > since {
			backlog = append(backlog, commit)
		}
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			sub, ok := s.subs[id]
			if ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
