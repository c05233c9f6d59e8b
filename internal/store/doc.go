// Package store provides SQLite-backed durable storage for translation runs.
//
// The store keeps:
//   - Runs: one row per batch, with the fingerprints of the catalog and
//     configuration every unit was translated under
//   - Translations: emitted units keyed by content hash, reused when the
//     same tree is translated again under the same catalog and policy
//   - Run units: which units a run touched, how far each got, and whether
//     it came from the cache
//   - Diagnostics: every located diagnostic a run produced
//
// # Ordering
//
// Units within a run are ordered by their completion sequence number,
// never by wall time. Queries always end in a deterministic ORDER BY so
// two reads of the same data return identical results.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Translation keys come from srctree.UnitHash: canonical JSON and SHA-256
// with domain separation, salted with the catalog and policy fingerprints.
package store
