// Package harness runs YAML-declared offline/online scenarios against
// the engine and compares the resulting event trace to golden files.
//
// A scenario scripts connectivity changes, writes, sub-item
// completions, sync passes, and reads. Every source of nondeterminism
// is pinned: correlation ids come from a fixed generator, the wall
// clock is frozen, and the remote double assigns server ids
// sequentially. Golden traces therefore stay byte-stable across runs.
package harness
