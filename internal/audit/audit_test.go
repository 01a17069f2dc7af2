package audit

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndForPod(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	events := []Event{
		{PodName: "workshop-user-alice", UserID: "user-alice", Event: "created", At: time.Now()},
		{PodName: "workshop-user-alice", UserID: "user-alice", Event: "deleted", Reason: "ttl_expired", At: time.Now()},
		{PodName: "workshop-user-bob", UserID: "user-bob", Event: "created", At: time.Now()},
	}
	for _, e := range events {
		if err := l.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := l.ForPod(ctx, "workshop-user-alice")
	if err != nil {
		t.Fatalf("ForPod: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for alice's pod, got %d", len(got))
	}
	if got[0].Event != "created" || got[1].Event != "deleted" {
		t.Errorf("expected created then deleted in order, got %s then %s", got[0].Event, got[1].Event)
	}
	if got[1].Reason != "ttl_expired" {
		t.Errorf("Reason = %q, want ttl_expired", got[1].Reason)
	}
}

func TestForPodUnknownPodReturnsEmpty(t *testing.T) {
	l := newTestLog(t)
	got, err := l.ForPod(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("ForPod: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestRecentOrdersNewestFirstAndLimits(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Record(ctx, Event{PodName: "workshop-user-carol", UserID: "user-carol", Event: "created", Reason: strconv.Itoa(i), At: time.Now()}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Reason != "4" || got[1].Reason != "3" || got[2].Reason != "2" {
		t.Errorf("expected the last three events newest first (4, 3, 2), got %s, %s, %s", got[0].Reason, got[1].Reason, got[2].Reason)
	}
}
