package lua

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	glua "github.com/yuin/gopher-lua"
)

func TestSandboxInstall(t *testing.T) {
	L := newSandboxedState(nil, "test", DefaultLimits())
	defer L.Close()

	for _, fn := range removedGlobals {
		if v := L.GetGlobal(fn); v != glua.LNil {
			t.Errorf("%s should be removed, got %T", fn, v)
		}
	}

	for _, lib := range []string{"table", "string", "math", "coroutine"} {
		if v := L.GetGlobal(lib); v.Type() != glua.LTTable {
			t.Errorf("%s library not opened, got %s", lib, v.Type())
		}
	}

	for _, lib := range []string{"io", "os", "debug", "package", "channel"} {
		if v := L.GetGlobal(lib); v != glua.LNil {
			t.Errorf("%s library must not be opened", lib)
		}
	}
}

func TestSandboxStandardFunctionsWork(t *testing.T) {
	L := newSandboxedState(nil, "test", DefaultLimits())
	defer L.Close()

	code := `
result = string.format("%d-%s", math.max(1, 3), table.concat({"a", "b"}, ","))
co = coroutine.create(function() coroutine.yield(1) end)
ok = coroutine.resume(co)
`
	if err := L.DoString(code); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}
	if got := L.GetGlobal("result").String(); got != "3-a,b" {
		t.Errorf("result = %q, want %q", got, "3-a,b")
	}
	if L.GetGlobal("ok") != glua.LTrue {
		t.Error("coroutine.resume failed")
	}
}

func TestSandboxRequire(t *testing.T) {
	L := newSandboxedState(nil, "test", DefaultLimits())
	defer L.Close()

	if err := L.DoString(`s = require("string")`); err != nil {
		t.Fatalf("require(string) error = %v", err)
	}
	if L.GetGlobal("s") != L.GetGlobal("string") {
		t.Error("require(string) did not return the string library")
	}

	for _, mod := range []string{"io", "os", "debug", "socket"} {
		err := L.DoString(`require("` + mod + `")`)
		if err == nil {
			t.Errorf("require(%q) should fail", mod)
			continue
		}
		if !strings.Contains(err.Error(), "not available") {
			t.Errorf("require(%q) error = %v", mod, err)
		}
	}
}

func TestSandboxPrintLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	L := newSandboxedState(logger, "alpha", DefaultLimits())
	defer L.Close()

	if err := L.DoString(`print("hello", 42)`); err != nil {
		t.Fatalf("DoString() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "plugin=alpha") {
		t.Errorf("log output %q does not name the plugin", out)
	}
	if !strings.Contains(out, `text="hello\t42"`) {
		t.Errorf("log output %q does not carry the printed text", out)
	}
}

func TestSandboxPrintWithoutLogger(t *testing.T) {
	L := newSandboxedState(nil, "alpha", DefaultLimits())
	defer L.Close()

	if err := L.DoString(`print("discarded")`); err != nil {
		t.Errorf("print without logger error = %v", err)
	}
}
