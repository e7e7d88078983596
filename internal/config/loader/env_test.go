package loader

import "testing"

func TestEnvLoaderLoad(t *testing.T) {
	t.Setenv("TESTAPP_LOG_LEVEL", "debug")
	t.Setenv("TESTAPP_ROOT", "")
	t.Setenv("TESTAPP_TYPO", "x")

	l := NewEnvLoader("TESTAPP_", map[string]string{
		"LOG_LEVEL": "logging.level",
		"ROOT":      "plugins.root",
		"UNSET":     "runtime.unset",
	})

	overrides, unknown := l.Load()
	if len(overrides) != 2 {
		t.Fatalf("overrides = %v, want 2", overrides)
	}

	// Sorted by path.
	if overrides[0].Path != "logging.level" || overrides[0].Value != "debug" {
		t.Errorf("overrides[0] = %+v", overrides[0])
	}
	if overrides[1].Path != "plugins.root" || overrides[1].Value != "" || overrides[1].Env != "TESTAPP_ROOT" {
		t.Errorf("overrides[1] = %+v", overrides[1])
	}

	if len(unknown) != 1 || unknown[0] != "TESTAPP_TYPO" {
		t.Errorf("unknown = %v, want [TESTAPP_TYPO]", unknown)
	}
}

func TestEnvLoaderAddMapping(t *testing.T) {
	t.Setenv("TESTAPP_EXTRA", "1")

	l := NewEnvLoader("TESTAPP_", nil)
	if _, unknown := l.Load(); len(unknown) != 1 {
		t.Fatalf("unknown = %v, want 1", unknown)
	}

	l.AddMapping("EXTRA", "runtime.extra")
	overrides, unknown := l.Load()
	if len(overrides) != 1 || overrides[0].Path != "runtime.extra" {
		t.Errorf("overrides = %v", overrides)
	}
	if len(unknown) != 0 {
		t.Errorf("unknown = %v, want none", unknown)
	}
}
