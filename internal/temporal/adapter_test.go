package temporal

import (
	"testing"

	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap"
)

func newObservedAdapter(t *testing.T) (*ZapAdapter, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return &ZapAdapter{logger: zap.New(core)}, logs
}

func TestZapAdapter_InfoWithKeyvals(t *testing.T) {
	adapter, logs := newObservedAdapter(t)
	adapter.Info("task started", "task_id", int64(42), "platform", "bocha")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["task_id"] != int64(42) || fields["platform"] != "bocha" {
		t.Errorf("fields = %+v", fields)
	}
}

func TestZapAdapter_SafeZapFieldRecoversFromUnserializable(t *testing.T) {
	adapter, logs := newObservedAdapter(t)
	var ch chan int
	adapter.Info("weird value", "ch", ch)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if _, ok := entries[0].ContextMap()["ch"]; !ok {
		t.Error("expected the chan field to still be logged as a placeholder, not dropped")
	}
}

func TestZapAdapter_With(t *testing.T) {
	adapter, logs := newObservedAdapter(t)
	child := adapter.With("task_id", int64(7))
	child.Info("unit executed")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].ContextMap()["task_id"] != int64(7) {
		t.Errorf("expected task_id field carried over from With()")
	}
}
