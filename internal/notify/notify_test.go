package notify

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"caregate/internal/domain"
)

func newTestStream(t *testing.T, maxLen int64) (*miniredis.Miniredis, *RedisStream) {
	t.Helper()
	mr := miniredis.RunT(t)
	rs := NewRedisStream(mr.Addr(), "", maxLen, zap.NewNop())
	t.Cleanup(func() { rs.Close() })
	return mr, rs
}

func run(id string, canRelease bool) domain.LockdownRun {
	level := domain.RiskModerate
	if !canRelease {
		level = domain.RiskHigh
	}
	return domain.LockdownRun{
		ID:          id,
		CaseID:      "case-1",
		EvaluatedOn: "2025-01-02",
		Result:      domain.LockdownResult{CanRelease: canRelease, RiskLevel: level, Issues: []domain.Issue{}},
	}
}

func TestPublishRun(t *testing.T) {
	_, rs := newTestStream(t, 0)
	ctx := context.Background()
	if err := rs.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := rs.PublishRun(ctx, run("r1", false)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := rs.PublishRun(ctx, run("r2", true)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs, err := rs.Client.XRange(ctx, DefaultStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].Values["run_id"] != "r1" || msgs[0].Values["can_release"] != "false" || msgs[0].Values["risk_level"] != "HIGH" {
		t.Fatalf("unexpected entry: %+v", msgs[0].Values)
	}

	recent, err := rs.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "r2" || recent[1].Result.RiskLevel != domain.RiskHigh {
		t.Fatalf("unexpected recent runs: %+v", recent)
	}
}

func TestPublishRunTrimsStream(t *testing.T) {
	_, rs := newTestStream(t, 3)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := rs.PublishRun(ctx, run(fmt.Sprintf("r%d", i), true)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	n, err := rs.Client.XLen(ctx, DefaultStream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	// approximate trimming may keep a few extra entries but never all of them
	if n >= 10 {
		t.Fatalf("expected stream to be trimmed, got %d entries", n)
	}
}

func TestPublishRunServerDown(t *testing.T) {
	mr, rs := newTestStream(t, 0)
	core, logs := observer.New(zap.DebugLevel)
	rs.Log = zap.New(core)
	mr.Close()
	if err := rs.PublishRun(context.Background(), run("r1", true)); err == nil {
		t.Fatalf("expected error when redis is down")
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("failed publish is reported by the caller, got %d log entries", n)
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.PublishRun(context.Background(), run("r", true)); err != nil {
		t.Fatal(err)
	}
}
