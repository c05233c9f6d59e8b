// Package ir provides the typed intermediate representation between tree
// lowering and code generation.
//
// A Module owns every node of one compilation unit in an index-addressed
// arena. Passes refer to nodes by ExprID/StmtID and rewrite them in place;
// nothing holds a pointer into another unit's arena.
//
// Key design constraints:
//   - ir imports nothing internal except diag; every pass imports ir
//   - ID 0 is the null node in both arenas
//   - Unknown is legal only between lowering and the end of inference
//   - ownership is attached by the ownership pass and only read afterwards
package ir
