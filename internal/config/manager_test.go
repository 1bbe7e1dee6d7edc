package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestConfigManager_LoadsInitialConfigOnStart(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte("headless: false\ntimeout_ms: 15000\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cm, err := NewConfigManager(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewConfigManager() error = %v", err)
	}
	t.Cleanup(func() { cm.Stop() })

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cfg, ok := cm.GetConfig("defaults.yaml")
	if !ok {
		t.Fatal("expected defaults.yaml to be loaded")
	}
	if cfg["headless"] != false {
		t.Errorf("headless = %v, want false", cfg["headless"])
	}
}

func TestConfigManager_DefaultsHolderIntegration(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte("headless: true\ntimeout_ms: 30000\ndelay_between_tasks: 3\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cm, err := NewConfigManager(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewConfigManager() error = %v", err)
	}
	t.Cleanup(func() { cm.Stop() })

	holder := NewDefaultsHolder(DefaultUnitSettings{Headless: true, TimeoutMs: 30000, DelayBetweenTasks: 3})
	cm.RegisterHandler("defaults.yaml", holder.ApplyChangeEvent)

	if err := cm.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte("headless: false\ntimeout_ms: 5000\ndelay_between_tasks: 1\n"), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := holder.Get(); got.TimeoutMs == 5000 {
			if got.Headless || got.DelayBetweenTasks != 1 {
				t.Fatalf("partial update: got %+v", got)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("holder was never updated after the config file change")
}
