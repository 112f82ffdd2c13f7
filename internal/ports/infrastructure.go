package ports

import (
	"context"
	"time"

	"github.com/ahrav/gavel-arena/internal/domain"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "system_prompt": string
	//   - "response_format": map[string]string{"type": "json_object"}
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens calculates the approximate token count for a given text.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// Judge scores one participant answer against its hidden target.
// Score never fails: provider and parse failures come back as a zero-score
// Verdict whose Failure field names the cause.
type Judge interface {
	Score(ctx context.Context, req domain.JudgeRequest) domain.Verdict

	// Name identifies the judge in logs and metrics.
	Name() string
}

// ConfigStore persists the singleton competition config.
type ConfigStore interface {
	// Load returns the current config, creating the default document on
	// first access.
	Load(ctx context.Context) (domain.CompetitionConfig, error)

	// CompareAndSwap replaces the stored config with next only if the stored
	// version still equals expected. next.Version must be expected+1.
	// A stale expected version yields domain.ErrVersionConflict.
	CompareAndSwap(ctx context.Context, expected uint64, next domain.CompetitionConfig) error
}

// ParticipantStore persists participant records keyed by username.
//
// Upsert and Update run fn as an atomic read-modify-write: no other write
// to the same username interleaves between the read and the write. If fn
// returns an error nothing is written.
type ParticipantStore interface {
	Get(ctx context.Context, username string) (domain.Participant, error)

	// Upsert creates the participant when missing and then applies fn.
	Upsert(ctx context.Context, username string, fn func(*domain.Participant) error) (domain.Participant, error)

	// Update applies fn to an existing participant. A missing username
	// yields a *domain.NotFoundError.
	Update(ctx context.Context, username string, fn func(*domain.Participant) error) (domain.Participant, error)

	// List returns every participant in creation order.
	List(ctx context.Context) ([]domain.Participant, error)

	// Delete removes the record. A missing username yields a
	// *domain.NotFoundError.
	Delete(ctx context.Context, username string) error
}

// AdminStore persists admin credentials.
type AdminStore interface {
	// Load returns the admin, creating it with the default secret hash on
	// first access of the default admin name.
	Load(ctx context.Context, username string) (domain.Admin, error)
	Save(ctx context.Context, admin domain.Admin) error
}

// SecretHasher hashes and verifies shared secrets.
type SecretHasher interface {
	Hash(secret string) (string, error)

	// Verify reports whether secret matches hash. The comparison runs in
	// constant time with respect to the secret.
	Verify(hash, secret string) bool
}

// EventKind names a state change pushed to connected participants.
type EventKind string

const (
	EventConfigChanged      EventKind = "config_changed"
	EventParticipantChanged EventKind = "participant_changed"
)

// Event is a notification that competition state changed. It carries no
// state itself; receivers re-read the stores.
type Event struct {
	Kind     EventKind `json:"kind"`
	Version  uint64    `json:"version,omitempty"`
	Username string    `json:"username,omitempty"`
	At       time.Time `json:"at"`
}

// EventPublisher fans out state-change notifications. Publishing is best
// effort; callers log and ignore errors.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSubscriber delivers published events to local listeners.
type EventSubscriber interface {
	// Subscribe registers fn and returns a function that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// MetricsCollector defines the interface for collecting operational metrics.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram, such as judge scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Metric names recorded by the application services.
const (
	MetricJudgeVerdicts  = "arena_judge_verdicts_total"
	MetricSubmissions    = "arena_submissions_total"
	MetricPersistRetries = "arena_persist_retries_total"
	MetricOnline         = "arena_participants_online"
)

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (NoopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (NoopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (NoopMetrics) RecordHistogram(string, float64, map[string]string)     {}
