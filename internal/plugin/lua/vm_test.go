package lua

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func instantiate(t *testing.T, code string, opts ...VMOption) *VM {
	t.Helper()
	dir := writeScripts(t, map[string]string{"main.lua": code})
	unit, _, err := Compile(dir, WithEntryPoint(""))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	vm, err := Instantiate(context.Background(), unit, opts...)
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	return vm
}

func TestInstantiateNilUnit(t *testing.T) {
	if _, err := Instantiate(context.Background(), nil); err != ErrNilUnit {
		t.Errorf("Instantiate(nil) error = %v, want ErrNilUnit", err)
	}
}

func TestInvokeIdentity(t *testing.T) {
	vm := instantiate(t, `function test(x) return x end`)

	for _, x := range []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40), MaxInteger, MinInteger} {
		got, err := vm.Invoke(context.Background(), "test", x)
		if err != nil {
			t.Fatalf("Invoke(%d) error = %v", x, err)
		}
		if got != x {
			t.Errorf("Invoke(%d) = %d", x, got)
		}
	}
}

func TestInvokeSharesGlobalsAcrossCalls(t *testing.T) {
	vm := instantiate(t, `
count = 0
function test(x)
	count = count + x
	return count
end`)

	ctx := context.Background()
	for i, want := range []int64{1, 3, 6} {
		got, err := vm.Invoke(ctx, "test", int64(i+1))
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
		if got != want {
			t.Errorf("call %d = %d, want %d", i, got, want)
		}
	}
}

func TestInvokeRuntimeErrors(t *testing.T) {
	vm := instantiate(t, `
notfn = 5
function test(x) return x end
function fails(x) error("boom") end
function text(x) return "hello" end
function frac(x) return x / 3 end
function nothing(x) end
function huge(x) return 2 ^ 60 end
`)

	tests := []struct {
		name string
		fn   string
		arg  int64
		want string
	}{
		{"missing", "absent", 1, "not defined"},
		{"not a function", "notfn", 1, "not a function"},
		{"script error", "fails", 1, "boom"},
		{"string result", "text", 1, "string"},
		{"fractional result", "frac", 1, "not an integer"},
		{"no result", "nothing", 1, "nil"},
		{"result out of range", "huge", 1, "exact range"},
		{"argument out of range", "test", MaxInteger + 1, "argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vm.Invoke(context.Background(), tt.fn, tt.arg)
			if !errors.Is(err, ErrRuntime) {
				t.Fatalf("error = %v, want ErrRuntime", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}

	// The VM stays usable after faults.
	if got, err := vm.Invoke(context.Background(), "test", 7); err != nil || got != 7 {
		t.Errorf("Invoke after faults = %d, %v", got, err)
	}
}

func TestInvokeExecutionTimeout(t *testing.T) {
	vm := instantiate(t, `
function spin(x)
	while true do end
end
function test(x) return x end
`, WithExecutionTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := vm.Invoke(context.Background(), "spin", 1)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("error = %v, want ErrExecutionTimeout", err)
	}
	if !errors.Is(err, ErrRuntime) {
		t.Errorf("error = %v, want to match ErrRuntime", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	if got, err := vm.Invoke(context.Background(), "test", 3); err != nil || got != 3 {
		t.Errorf("Invoke after timeout = %d, %v", got, err)
	}
}

func TestInvokeContextCanceled(t *testing.T) {
	vm := instantiate(t, `function spin(x) while true do end end`, WithExecutionTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := vm.Invoke(ctx, "spin", 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestInstantiateTopLevelError(t *testing.T) {
	dir := writeScripts(t, map[string]string{"main.lua": `error("init failed")`})
	unit, _, err := Compile(dir, WithEntryPoint(""))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	vm, err := Instantiate(context.Background(), unit)
	if vm != nil {
		t.Error("Instantiate() returned a VM despite a failing chunk")
	}
	if !errors.Is(err, ErrRuntime) || !strings.Contains(err.Error(), "init failed") {
		t.Errorf("error = %v, want runtime error mentioning init failed", err)
	}
}

func TestVMClose(t *testing.T) {
	vm := instantiate(t, `function test(x) return x end`)
	if !vm.hasFunction("test") {
		t.Error("hasFunction(test) = false")
	}

	if err := vm.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := vm.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := vm.Invoke(context.Background(), "test", 1); err != ErrStateClosed {
		t.Errorf("Invoke after Close error = %v, want ErrStateClosed", err)
	}
	if vm.hasFunction("test") {
		t.Error("hasFunction after Close = true")
	}
}

func TestSeparateVMsDoNotShareGlobals(t *testing.T) {
	dir := writeScripts(t, map[string]string{"main.lua": `
n = 0
function test(x) n = n + x return n end`})
	unit, _, err := Compile(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	a, err := Instantiate(ctx, unit)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Instantiate(ctx, unit)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := a.Invoke(ctx, "test", 10); err != nil {
		t.Fatal(err)
	}
	got, err := b.Invoke(ctx, "test", 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("second VM saw first VM's state: got %d, want 1", got)
	}
}
