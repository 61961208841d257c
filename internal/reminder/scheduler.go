package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Action is invoked on every fire of a conversation's job. It must not call
// back into the Scheduler for the same conversation.
type Action func(ctx context.Context, conversationID string)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler keeps at most one recurring job per conversation.
// The first fire happens one full interval after Schedule.
type Scheduler struct {
	interval time.Duration
	action   Action

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	stop    context.CancelFunc
	stopped bool

	running atomic.Int64
}

// NewScheduler creates a Scheduler firing action every interval
func NewScheduler(interval time.Duration, action Action) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("reminder interval must be positive, got %s", interval)
	}
	if action == nil {
		return nil, fmt.Errorf("reminder action is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		interval: interval,
		action:   action,
		jobs:     make(map[string]*job),
		ctx:      ctx,
		stop:     cancel,
	}, nil
}

// Schedule installs the recurring job for a conversation, replacing any
// existing one. The replaced job has fully stopped when Schedule returns.
func (s *Scheduler) Schedule(conversationID string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	old := s.jobs[conversationID]
	ctx, cancel := context.WithCancel(s.ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}
	s.jobs[conversationID] = j
	s.running.Add(1)
	go s.run(ctx, conversationID, j.done)
	s.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
		slog.Debug("Replaced reminder job", "conversation_id", conversationID)
	}
}

// Cancel stops the conversation's job. No fire happens after Cancel returns.
func (s *Scheduler) Cancel(conversationID string) bool {
	s.mu.Lock()
	j, ok := s.jobs[conversationID]
	delete(s.jobs, conversationID)
	s.mu.Unlock()

	if !ok {
		return false
	}
	j.cancel()
	<-j.done
	return true
}

// IsScheduled reports whether the conversation has an active job
func (s *Scheduler) IsScheduled(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[conversationID]
	return ok
}

// Len returns the number of active jobs
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every job and waits for them to exit; later Schedule calls are ignored
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	jobs := s.jobs
	s.jobs = make(map[string]*job)
	s.mu.Unlock()

	s.stop()
	for _, j := range jobs {
		<-j.done
	}
}

func (s *Scheduler) run(ctx context.Context, conversationID string, done chan struct{}) {
	defer close(done)
	defer s.running.Add(-1)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// both channels may be ready; cancellation wins
			if ctx.Err() != nil {
				return
			}
			s.fire(ctx, conversationID)
		}
	}
}

// fire runs the action, keeping the job alive if it panics
func (s *Scheduler) fire(ctx context.Context, conversationID string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Reminder action panicked", "conversation_id", conversationID, "panic", r)
		}
	}()
	s.action(ctx, conversationID)
}
