package sweep

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/nextlevelbuilder/infercore/internal/generator"
	"github.com/nextlevelbuilder/infercore/internal/modelhost"
	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	host := modelhost.NewHost(1)
	host.Load("fake-model")
	cfg := scheduler.DefaultConfig()
	cfg.WorkerThreads = 1
	var meter metric.Meter
	return scheduler.New(cfg, host, nil, generator.NewFakeGenerator(), meter)
}

func TestJob_InvalidScheduleReturnsError(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Close()

	j := NewJob(s, "not a cron expr")
	err := j.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error for an invalid schedule")
	}
}

func TestJob_StopEndsRunLoop(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Close()

	j := NewJob(s, "* * * * *")
	done := make(chan error, 1)
	go func() { done <- j.Run(context.Background()) }()

	j.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after Stop")
	}
}

func TestJob_ContextCancelEndsRunLoop(t *testing.T) {
	s := newTestScheduler(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	j := NewJob(s, "* * * * *")
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancel")
	}
}
