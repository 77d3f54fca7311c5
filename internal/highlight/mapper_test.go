package highlight

import (
	"testing"

	"github.com/vinnividivicci/openingbim-cicd/internal/engine"
)

// fakeModel resolves a fixed set of element ids by adding an offset.
type fakeModel struct {
	name  string
	known map[int64]int64
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) Lookup(elementID int64) (int64, bool) {
	h, ok := m.known[elementID]
	return h, ok
}

func TestToAddressableResolvesPerModel(t *testing.T) {
	t.Parallel()

	a := &fakeModel{name: "a.ifc", known: map[int64]int64{101: 1, 102: 2}}
	b := &fakeModel{name: "b.ifc", known: map[int64]int64{102: 7}}

	got := ToAddressable([]string{"101", "102", "999"}, []engine.Model{a, b})

	if len(got) != 2 {
		t.Fatalf("models resolved = %d, want 2", len(got))
	}
	if len(got["a.ifc"]) != 2 || got["a.ifc"][0] != 1 || got["a.ifc"][1] != 2 {
		t.Fatalf("a.ifc handles = %v", got["a.ifc"])
	}
	if len(got["b.ifc"]) != 1 || got["b.ifc"][0] != 7 {
		t.Fatalf("b.ifc handles = %v", got["b.ifc"])
	}
}

func TestToAddressableSkipsNonNumericIDs(t *testing.T) {
	t.Parallel()

	m := &fakeModel{name: "m.ifc", known: map[int64]int64{5: 50}}
	got := ToAddressable([]string{"2O2Fr$t4X7Zf8NOew3FLOH", "5"}, []engine.Model{m})

	if len(got["m.ifc"]) != 1 || got["m.ifc"][0] != 50 {
		t.Fatalf("handles = %v, want [50]", got["m.ifc"])
	}
}

func TestToAddressableEmptyWhenNothingResolves(t *testing.T) {
	t.Parallel()

	m := &fakeModel{name: "m.ifc", known: map[int64]int64{}}
	got := ToAddressable([]string{"33", "34", "35"}, []engine.Model{m})

	// No synthetic fallback ids; an unresolvable set yields an empty map.
	if len(got) != 0 {
		t.Fatalf("mapping = %v, want empty", got)
	}
}
