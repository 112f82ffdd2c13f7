package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/gavel-arena/internal/domain"
	"github.com/ahrav/gavel-arena/internal/ports"
)

// ErrInjected is returned by FlakyParticipantStore for injected failures.
var ErrInjected = errors.New("injected store failure")

// FlakyParticipantStore wraps a ParticipantStore and fails Update calls
// on demand. Upsert, Get, List and Delete pass through.
type FlakyParticipantStore struct {
	ports.ParticipantStore

	mu sync.Mutex
	// failFrom is the 1-based Update call from which failures start; zero
	// disables failures.
	failFrom int
	// failCount is how many consecutive Update calls fail once failFrom is
	// reached; negative means every call after failFrom.
	failCount int
	updates   int
	failures  int
}

// NewFlakyParticipantStore wraps inner with failures disabled.
func NewFlakyParticipantStore(inner ports.ParticipantStore) *FlakyParticipantStore {
	return &FlakyParticipantStore{ParticipantStore: inner}
}

// FailUpdates makes count Update calls fail starting at the from-th call.
// A negative count fails every call from then on.
func (f *FlakyParticipantStore) FailUpdates(from, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFrom, f.failCount = from, count
}

// Update fails when the injected window covers this call.
func (f *FlakyParticipantStore) Update(
	ctx context.Context,
	username string,
	fn func(*domain.Participant) error,
) (domain.Participant, error) {
	f.mu.Lock()
	f.updates++
	n := f.updates
	fail := f.failFrom > 0 && n >= f.failFrom && (f.failCount < 0 || n < f.failFrom+f.failCount)
	if fail {
		f.failures++
	}
	f.mu.Unlock()

	if fail {
		return domain.Participant{}, ErrInjected
	}
	return f.ParticipantStore.Update(ctx, username, fn)
}

// Updates returns how many Update calls were made, including failures.
func (f *FlakyParticipantStore) Updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

// Failures returns how many Update calls were failed on purpose.
func (f *FlakyParticipantStore) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}
