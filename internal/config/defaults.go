package config

import "sync/atomic"

// DefaultsHolder is the engine's live, hot-reloadable view of
// DefaultUnitSettings: the task-engine worker reads it on every LoadTask
// activity so an operator can change headless mode, the per-unit timeout,
// or the inter-unit delay without restarting the binary. ConfigManager
// drives updates to it as the backing file changes on disk.
type DefaultsHolder struct {
	v atomic.Pointer[DefaultUnitSettings]
}

// NewDefaultsHolder seeds the holder with the settings loaded at startup.
func NewDefaultsHolder(initial DefaultUnitSettings) *DefaultsHolder {
	h := &DefaultsHolder{}
	h.v.Store(&initial)
	return h
}

// Get returns the current defaults.
func (h *DefaultsHolder) Get() DefaultUnitSettings {
	return *h.v.Load()
}

// Set atomically replaces the current defaults.
func (h *DefaultsHolder) Set(d DefaultUnitSettings) {
	h.v.Store(&d)
}

// ApplyChangeEvent decodes a ChangeEvent's raw config map into
// DefaultUnitSettings and stores it, ignoring fields it doesn't recognize.
// Intended as a ChangeHandler registered against ConfigManager for the
// runtime defaults file (e.g. "defaults.yaml").
func (h *DefaultsHolder) ApplyChangeEvent(event ChangeEvent) error {
	current := h.Get()
	if v, ok := event.Config["headless"].(bool); ok {
		current.Headless = v
	}
	if v, ok := asInt(event.Config["timeout_ms"]); ok {
		current.TimeoutMs = v
	}
	if v, ok := asInt(event.Config["delay_between_tasks"]); ok {
		current.DelayBetweenTasks = v
	}
	h.Set(current)
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
