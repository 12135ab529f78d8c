package match

import (
	"sort"
	"sync"

	"buswatch/internal/domain"
)

// Tree indexes stored rules for dispatch. Rules are partitioned by member
// name — the most selective filter field and the one usually present — with
// rules carrying a wildcard member in a separate bucket that every lookup
// also scans. Global sequence numbers keep FindMatches results in overall
// insertion order across buckets.
//
// Nothing is deduplicated: two structurally identical rules with different
// handlers are distinct subscriptions and coexist.
type Tree struct {
	mu       sync.RWMutex
	byMember map[string][]*Rule
	wildcard []*Rule
	nextSeq  uint64
}

// NewTree returns an empty index.
func NewTree() *Tree {
	return &Tree{byMember: make(map[string][]*Rule)}
}

// Add stores the rule unconditionally.
func (t *Tree) Add(r *Rule) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.seq = t.nextSeq
	t.nextSeq++
	if r.member == "" {
		t.wildcard = append(t.wildcard, r)
		return
	}
	t.byMember[r.member] = append(t.byMember[r.member], r)
}

// Remove deletes subscriptions whose filter equals the key's. With a nil
// handler every such entry is removed outright; otherwise only the given
// handler is detached, and entries left with no handlers are pruned. A key
// that matches nothing is a silent no-op — the subscription may already have
// been cleaned up. The fully removed rules are returned so the caller can
// retract daemon-side registrations.
func (t *Tree) Remove(key *Rule, h domain.Handler) []*Rule {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*Rule
	prune := func(bucket []*Rule) []*Rule {
		kept := make([]*Rule, 0, len(bucket))
		for _, r := range bucket {
			if !r.SameFilter(key) {
				kept = append(kept, r)
				continue
			}
			if h != nil {
				if !r.removeHandler(h) || len(r.handlers) > 0 {
					kept = append(kept, r)
					continue
				}
			}
			removed = append(removed, r)
		}
		return kept
	}

	if key.member == "" {
		t.wildcard = prune(t.wildcard)
		return removed
	}
	bucket := prune(t.byMember[key.member])
	if len(bucket) == 0 {
		delete(t.byMember, key.member)
	} else {
		t.byMember[key.member] = bucket
	}
	return removed
}

// Len reports the number of stored rules.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.wildcard)
	for _, bucket := range t.byMember {
		n += len(bucket)
	}
	return n
}

// Match is a dispatch-ready snapshot of one matched rule: the handler list
// is copied under the index lock, so handlers invoked afterwards may
// subscribe or unsubscribe without invalidating an in-flight dispatch.
type Match struct {
	Handlers []domain.Handler

	SenderKeyword    string
	PathKeyword      string
	InterfaceKeyword string
	MemberKeyword    string
}

// FindMatches returns a snapshot of every stored rule matching the signal,
// in insertion order.
func (t *Tree) FindMatches(sig domain.Signal) []Match {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var rules []*Rule
	for _, r := range t.byMember[sig.Member] {
		if r.Matches(sig) {
			rules = append(rules, r)
		}
	}
	for _, r := range t.wildcard {
		if r.Matches(sig) {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].seq < rules[j].seq })

	out := make([]Match, len(rules))
	for i, r := range rules {
		out[i] = Match{
			Handlers:         append([]domain.Handler(nil), r.handlers...),
			SenderKeyword:    r.senderKeyword,
			PathKeyword:      r.pathKeyword,
			InterfaceKeyword: r.interfaceKeyword,
			MemberKeyword:    r.memberKeyword,
		}
	}
	return out
}
