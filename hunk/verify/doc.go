// Package verify checks invariants that span the arena, the zone and the
// cache. Each layer validates itself through its own Check or Verify method;
// this package adds the checks no single layer can make on its own:
//
//   - the zone image carved at the bottom of the arena walks cleanly from
//     raw bytes, independent of the zone's own bookkeeping
//   - the zone's budget fits inside the carve-outs
//   - every cache entry lies in the gap and overlaps no stack entry
//
// Failures are reported as *ValidationError, which unwraps to
// hunk.ErrCorrupt. The helpers are used by tests and by hunkctl after a
// simulated workload.
//
//	if err := verify.AllInvariants(arena, z, c); err != nil {
//		return err
//	}
package verify
