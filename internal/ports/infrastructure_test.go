package ports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahrav/gavel-arena/internal/domain"
)

// Compile-time checks that the interfaces can be satisfied by simple
// implementations.
var (
	_ LLMClient        = (*mockLLMClient)(nil)
	_ Judge            = (*constJudge)(nil)
	_ MetricsCollector = NoopMetrics{}
	_ EventPublisher   = (*recordingBus)(nil)
	_ EventSubscriber  = (*recordingBus)(nil)
)

type mockLLMClient struct{ model string }

func (m *mockLLMClient) Complete(context.Context, string, map[string]any) (string, error) {
	return `{"score": 50, "reason": "ok"}`, nil
}

func (m *mockLLMClient) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }

func (m *mockLLMClient) GetModel() string { return m.model }

type constJudge struct{ score float64 }

func (j *constJudge) Score(context.Context, domain.JudgeRequest) domain.Verdict {
	return domain.Verdict{Score: j.score, Reason: "constant"}
}

func (j *constJudge) Name() string { return "const" }

type recordingBus struct {
	mu  sync.Mutex
	fns []func(Event)
}

func (b *recordingBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	fns := append([]func(Event){}, b.fns...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (b *recordingBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fns = append(b.fns, fn)
	return func() {}
}

func TestJudgeInterface(t *testing.T) {
	var j Judge = &constJudge{score: 42}

	v := j.Score(context.Background(), domain.JudgeRequest{Task: domain.TaskText})

	assert.Equal(t, 42.0, v.Score)
	assert.False(t, v.Failed())
	assert.Equal(t, "const", j.Name())
}

func TestEventBusInterface(t *testing.T) {
	bus := &recordingBus{}
	var got []Event
	bus.Subscribe(func(ev Event) { got = append(got, ev) })

	ev := Event{Kind: EventConfigChanged, Version: 3, At: time.Unix(0, 0)}
	assert.NoError(t, bus.Publish(context.Background(), ev))

	assert.Equal(t, []Event{ev}, got)
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsCollector = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.RecordLatency("op", time.Second, nil)
		m.RecordCounter("c", 1, map[string]string{"a": "b"})
		m.RecordGauge("g", 2, nil)
		m.RecordHistogram("h", 3, nil)
	})
}
