package flags

import (
	"slices"
	"testing"

	"mercator-hq/relay/pkg/listenable"
)

type mode string

const (
	modeFast mode = "fast"
	modeSafe mode = "safe"
)

func TestManager_AbsentPropertyUsesDefault(t *testing.T) {
	m := NewManager(NewMemoryStore(nil), listenable.Immediate())

	if got := Get(m, Bool("Test__enabled", true)); got != true {
		t.Errorf("Get(bool) = %v, want true", got)
	}
	if got := Get(m, Int32("Test__count", 7)); got != 7 {
		t.Errorf("Get(int32) = %v, want 7", got)
	}

	override := int32(42)
	if got := GetOrOverride(m, Int32("Test__count", 7), &override); got != 42 {
		t.Errorf("GetOrOverride() = %v, want 42", got)
	}
}

func TestManager_MalformedPropertyFallsBack(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		"Test__bool":  "maybe",
		"Test__int":   "12abc",
		"Test__long":  "9223372036854775808",
		"Test__float": "fast",
		"Test__enum":  "turbo",
	})
	m := NewManager(store, listenable.Immediate())

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"bool", Get(m, Bool("Test__bool", true)), true},
		{"int", Get(m, Int32("Test__int", 3)), int32(3)},
		{"long overflow", Get(m, Int64("Test__long", 5)), int64(5)},
		{"float", Get(m, Float64("Test__float", 1.5)), 1.5},
		{"enum", Get(m, Enum("Test__enum", modeSafe, modeFast, modeSafe)), modeSafe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	override := int32(99)
	if got := GetOrOverride(m, Int32("Test__int", 3), &override); got != 99 {
		t.Errorf("malformed with override = %v, want 99", got)
	}
	if m.ParseFailures() != 6 {
		t.Errorf("ParseFailures() = %d, want 6", m.ParseFailures())
	}
}

func TestManager_ParsesValidProperties(t *testing.T) {
	store := NewMemoryStore(map[string]string{
		"Test__bool":   "true",
		"Test__int":    " 12 ",
		"Test__long":   "-400000000000",
		"Test__float":  "0.25",
		"Test__string": "  kept as is ",
		"Test__enum":   "fast",
		"Test__list":   " a, ,b ,, c,",
	})
	m := NewManager(store, listenable.Immediate())

	if !Get(m, Bool("Test__bool", false)) {
		t.Error("bool not parsed")
	}
	if got := Get(m, Int32("Test__int", 0)); got != 12 {
		t.Errorf("int32 = %d", got)
	}
	if got := Get(m, Int64("Test__long", 0)); got != -400000000000 {
		t.Errorf("int64 = %d", got)
	}
	if got := Get(m, Float64("Test__float", 0)); got != 0.25 {
		t.Errorf("float = %v", got)
	}
	if got := Get(m, String("Test__string", "")); got != "  kept as is " {
		t.Errorf("string = %q", got)
	}
	if got := Get(m, Enum("Test__enum", modeSafe, modeFast, modeSafe)); got != modeFast {
		t.Errorf("enum = %v", got)
	}
	if got := Get(m, StringList("Test__list", nil)); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("list = %v", got)
	}
}

func TestManager_ListenableForwardsChangedNames(t *testing.T) {
	store := NewMemoryStore(map[string]string{"A__x": "1"})
	m := NewManager(store, listenable.Immediate())
	defer m.Close()

	var batches [][]string
	m.Listenable().AddListener(func(names []string) {
		batches = append(batches, names)
	})

	store.Set("A__x", "1") // unchanged
	store.Set("A__x", "2")
	store.Replace(map[string]string{"A__x": "2", "B__y": "3"})
	store.Delete("A__x")

	want := [][]string{{"A__x"}, {"B__y"}, {"A__x"}}
	if len(batches) != len(want) {
		t.Fatalf("batches = %v, want %v", batches, want)
	}
	for i := range want {
		if !slices.Equal(batches[i], want[i]) {
			t.Errorf("batch %d = %v, want %v", i, batches[i], want[i])
		}
	}
}

func TestAnyHasPrefix(t *testing.T) {
	if !AnyHasPrefix([]string{"Other__a", "Relay__b"}, "Relay__") {
		t.Error("expected prefix match")
	}
	if AnyHasPrefix([]string{"Other__a"}, "Relay__") {
		t.Error("unexpected prefix match")
	}
	if AnyHasPrefix(nil, "Relay__") {
		t.Error("nil names matched")
	}
}

func TestSplitList(t *testing.T) {
	tests := map[string][]string{
		"":           {},
		",,":         {},
		"a":          {"a"},
		" a , b ":    {"a", "b"},
		"x,,y, ,z ,": {"x", "y", "z"},
	}
	for in, want := range tests {
		if got := SplitList(in); !slices.Equal(got, want) {
			t.Errorf("SplitList(%q) = %v, want %v", in, got, want)
		}
	}
}
