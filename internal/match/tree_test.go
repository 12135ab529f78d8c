package match

import (
	"testing"

	"buswatch/internal/domain"
)

func taggedRule(t *testing.T, f Filter, tag string, order *[]string) *Rule {
	t.Helper()
	r := mustRule(t, f)
	r.AddHandler(func(domain.Delivery) { *order = append(*order, tag) })
	return r
}

func TestTree_OrderPreservation(t *testing.T) {
	tree := NewTree()
	var order []string
	f := Filter{Member: "Tick"}

	tree.Add(taggedRule(t, f, "A", &order))
	tree.Add(taggedRule(t, f, "B", &order))
	tree.Add(taggedRule(t, f, "C", &order))

	for _, m := range tree.FindMatches(sig("Tick", "", "", "")) {
		for _, h := range m.Handlers {
			h(domain.Delivery{})
		}
	}

	if len(order) != 3 || order[0] != "A" || order[1] != "B" || order[2] != "C" {
		t.Errorf("expected A,B,C dispatch order, got %v", order)
	}
}

func TestTree_CrossBucketInsertionOrder(t *testing.T) {
	tree := NewTree()
	var order []string

	// A wildcard-member rule interleaved between member rules must keep its
	// insertion position in match results.
	tree.Add(taggedRule(t, Filter{Member: "Tick"}, "first", &order))
	tree.Add(taggedRule(t, Filter{}, "second", &order))
	tree.Add(taggedRule(t, Filter{Member: "Tick"}, "third", &order))

	for _, m := range tree.FindMatches(sig("Tick", "", "", "")) {
		for _, h := range m.Handlers {
			h(domain.Delivery{})
		}
	}

	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("expected first,second,third, got %v", order)
	}
}

func TestTree_FindMatchesExcludesNonMatching(t *testing.T) {
	tree := NewTree()
	tree.Add(mustRule(t, Filter{Member: "Tick", Interface: "org.example.A"}))
	tree.Add(mustRule(t, Filter{Member: "Tock"}))

	got := tree.FindMatches(sig("Tick", "org.example.B", "", ""))
	if len(got) != 0 {
		t.Errorf("expected no matches, got %d", len(got))
	}
}

func TestTree_DuplicateFiltersCoexist(t *testing.T) {
	tree := NewTree()
	f := Filter{Member: "Tick"}
	tree.Add(mustRule(t, f))
	tree.Add(mustRule(t, f))

	if tree.Len() != 2 {
		t.Errorf("expected 2 stored rules, got %d", tree.Len())
	}
	if got := tree.FindMatches(sig("Tick", "", "", "")); len(got) != 2 {
		t.Errorf("expected both duplicates to match, got %d", len(got))
	}
}

func TestTree_SelectiveRemoval(t *testing.T) {
	tree := NewTree()
	f := Filter{Member: "Tick"}

	var got []string
	h1 := domain.Handler(func(domain.Delivery) { got = append(got, "H1") })
	h2 := domain.Handler(func(domain.Delivery) { got = append(got, "H2") })

	r1 := mustRule(t, f)
	r1.AddHandler(h1)
	r2 := mustRule(t, f)
	r2.AddHandler(h2)
	tree.Add(r1)
	tree.Add(r2)

	key := mustRule(t, f)
	removed := tree.Remove(key, h1)
	if len(removed) != 1 {
		t.Fatalf("expected 1 pruned rule, got %d", len(removed))
	}

	// H2 keeps receiving; no empty entry lingers.
	if tree.Len() != 1 {
		t.Errorf("expected 1 remaining rule, got %d", tree.Len())
	}
	for _, m := range tree.FindMatches(sig("Tick", "", "", "")) {
		if len(m.Handlers) == 0 {
			t.Error("dangling rule with zero handlers")
		}
		for _, h := range m.Handlers {
			h(domain.Delivery{})
		}
	}
	if len(got) != 1 || got[0] != "H2" {
		t.Errorf("expected only H2 to fire, got %v", got)
	}
}

func TestTree_RemoveSharedHandlerPrunesEmptiedRule(t *testing.T) {
	tree := NewTree()
	f := Filter{Member: "Tick"}

	var count int
	h1 := domain.Handler(func(domain.Delivery) { count++ })
	h2 := domain.Handler(func(domain.Delivery) { count += 10 })

	r := mustRule(t, f)
	r.AddHandler(h1)
	r.AddHandler(h2)
	tree.Add(r)

	// Detaching one of two handlers keeps the entry alive.
	if removed := tree.Remove(mustRule(t, f), h1); len(removed) != 0 {
		t.Errorf("entry with a remaining handler must not be pruned, got %d", len(removed))
	}
	if tree.Len() != 1 {
		t.Fatalf("expected entry to survive, Len=%d", tree.Len())
	}

	// Detaching the last handler prunes it.
	if removed := tree.Remove(mustRule(t, f), h2); len(removed) != 1 {
		t.Errorf("expected pruned entry after last handler removed, got %d", len(removed))
	}
	if tree.Len() != 0 {
		t.Errorf("expected empty tree, Len=%d", tree.Len())
	}
}

func TestTree_RemoveAllWithNilHandler(t *testing.T) {
	tree := NewTree()
	f := Filter{Member: "Tick", Sender: ":1.4"}

	r1 := mustRule(t, f)
	r1.AddHandler(func(domain.Delivery) {})
	r2 := mustRule(t, f)
	r2.AddHandler(func(domain.Delivery) {})
	tree.Add(r1)
	tree.Add(r2)
	tree.Add(mustRule(t, Filter{Member: "Tock"}))

	removed := tree.Remove(mustRule(t, f), nil)
	if len(removed) != 2 {
		t.Errorf("expected both same-filter entries removed, got %d", len(removed))
	}
	if tree.Len() != 1 {
		t.Errorf("unrelated entry should survive, Len=%d", tree.Len())
	}
}

func TestTree_NoopRemoval(t *testing.T) {
	tree := NewTree()
	r := mustRule(t, Filter{Member: "Tick"})
	r.AddHandler(func(domain.Delivery) {})
	tree.Add(r)

	removed := tree.Remove(mustRule(t, Filter{Member: "Nothing"}), nil)
	if len(removed) != 0 {
		t.Errorf("removal of unknown filter must be a no-op, got %d", len(removed))
	}
	if tree.Len() != 1 {
		t.Errorf("index must be unchanged, Len=%d", tree.Len())
	}

	// Same for the wildcard bucket.
	removed = tree.Remove(mustRule(t, Filter{}), nil)
	if len(removed) != 0 || tree.Len() != 1 {
		t.Errorf("wildcard no-op removal altered the index")
	}
}

func TestTree_SnapshotSurvivesMutation(t *testing.T) {
	tree := NewTree()
	f := Filter{Member: "Tick"}
	r := mustRule(t, f)
	var fired int
	h := domain.Handler(func(domain.Delivery) { fired++ })
	r.AddHandler(h)
	tree.Add(r)

	matches := tree.FindMatches(sig("Tick", "", "", ""))
	tree.Remove(mustRule(t, f), nil)

	// The snapshot taken before removal still carries the handler.
	for _, m := range matches {
		for _, hh := range m.Handlers {
			hh(domain.Delivery{})
		}
	}
	if fired != 1 {
		t.Errorf("snapshot should keep the handler invocable, fired=%d", fired)
	}
}
