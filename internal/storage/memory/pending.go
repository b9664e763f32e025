// Package memory keeps pending registrations in process memory. Entries are
// lost on restart; use the redis backend when they must survive one.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"
)

type PendingStore struct {
	mu      sync.Mutex
	entries map[string]models.PendingRegistration
	ttl     time.Duration
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewPendingStore builds an empty store. A zero ttl keeps entries until they
// are verified.
func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		entries: map[string]models.PendingRegistration{},
		ttl:     ttl,
		now:     time.Now,
	}
}

// Start launches the expiry sweeper. It is a no-op without a ttl.
func (s *PendingStore) Start(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
}

// Stop ends the sweeper started by Start and waits for it to exit.
func (s *PendingStore) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done
}

// Sweep drops expired entries and returns how many were removed.
func (s *PendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for email, p := range s.entries {
		if p.IsExpired(now) {
			delete(s.entries, email)
			removed++
		}
	}

	return removed
}

func (s *PendingStore) Create(_ context.Context, p models.PendingRegistration) error {
	const op = "storage.memory.Create"

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.entries[p.Email]; ok && !existing.IsExpired(now) {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingExists)
	}

	p.Attempts = 0
	p.CreatedAt = now
	p.ExpiresAt = s.deadline(now)
	s.entries[p.Email] = p

	return nil
}

func (s *PendingStore) Get(_ context.Context, email string) (models.PendingRegistration, error) {
	const op = "storage.memory.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lookup(email)
	if !ok {
		return models.PendingRegistration{}, fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	return p, nil
}

// ReplaceOTP swaps the code of an existing entry, resets its attempt counter
// and restarts its ttl.
func (s *PendingStore) ReplaceOTP(_ context.Context, email, code string) error {
	const op = "storage.memory.ReplaceOTP"

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lookup(email)
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	p.OTP = code
	p.Attempts = 0
	p.ExpiresAt = s.deadline(s.now())
	s.entries[email] = p

	return nil
}

// IncrementAttempts records a failed match and returns the new count.
func (s *PendingStore) IncrementAttempts(_ context.Context, email string) (int, error) {
	const op = "storage.memory.IncrementAttempts"

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.lookup(email)
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	p.Attempts++
	s.entries[email] = p

	return p.Attempts, nil
}

func (s *PendingStore) Delete(_ context.Context, email string) error {
	const op = "storage.memory.Delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(email); !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrPendingNotFound)
	}

	delete(s.entries, email)

	return nil
}

// lookup must be called with s.mu held.
func (s *PendingStore) lookup(email string) (models.PendingRegistration, bool) {
	p, ok := s.entries[email]
	if !ok {
		return models.PendingRegistration{}, false
	}

	if p.IsExpired(s.now()) {
		delete(s.entries, email)
		return models.PendingRegistration{}, false
	}

	return p, true
}

func (s *PendingStore) deadline(now time.Time) time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}

	return now.Add(s.ttl)
}
