package domain

import "strings"

// QueryKind identifies a registered query kind. Kinds are dense, assigned in
// registration order, and only meaningful within one process. Kind names are what
// survives between sessions.
type QueryKind uint16

// KindFlags control how a query kind interacts with the caches and the dependency graph.
type KindFlags uint8

const (
	// FlagAnonymous marks kinds whose dependency node is derived from the nodes they read
	// instead of their key. Anonymous results are never loaded from disk.
	FlagAnonymous KindFlags = 1 << iota
	// FlagEvalAlways marks kinds that are recomputed every session. They are never marked
	// green and their dependents treat them as changed.
	FlagEvalAlways
	// FlagNoHash marks kinds whose results are not fingerprinted. A recomputed NoHash node
	// is always red.
	FlagNoHash
	// FlagInput marks kinds whose values are fed from outside the engine.
	FlagInput
)

// Has reports whether all bits of flag are set.
func (f KindFlags) Has(flag KindFlags) bool {
	return f&flag == flag
}

// String renders the set flags, for logs.
func (f KindFlags) String() string {
	var parts []string
	if f.Has(FlagAnonymous) {
		parts = append(parts, "anon")
	}
	if f.Has(FlagEvalAlways) {
		parts = append(parts, "eval_always")
	}
	if f.Has(FlagNoHash) {
		parts = append(parts, "no_hash")
	}
	if f.Has(FlagInput) {
		parts = append(parts, "input")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// CyclePolicy selects how a cycle through a query kind is resolved.
type CyclePolicy uint8

const (
	// CycleDefault reports the cycle as an error diagnostic and substitutes the fallback value.
	CycleDefault CyclePolicy = iota
	// CycleDelayBug records the cycle as a delayed bug and substitutes the fallback value.
	// The session only fails on it if no other error was reported.
	CycleDelayBug
	// CycleFatal reports the cycle and fails the query with the cycle error.
	CycleFatal
)

// String returns the policy name as used in query definitions.
func (p CyclePolicy) String() string {
	switch p {
	case CycleDelayBug:
		return "cycle_delay_bug"
	case CycleFatal:
		return "fatal_cycle"
	default:
		return "default"
	}
}

// KindInfo is the static description of a query kind.
type KindInfo struct {
	Kind  QueryKind
	Name  string
	Flags KindFlags
	Cycle CyclePolicy
}

// KindResolver maps kinds to their descriptions and back.
type KindResolver interface {
	KindInfo(kind QueryKind) (KindInfo, bool)
	KindByName(name string) (KindInfo, bool)
}
