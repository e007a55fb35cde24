// Package runtime is the phase state machine.
//
// A Graph is a table of nodes indexed by domain.NodeID. Each node pairs a
// transform, which returns a partial domain.Update, with an ordered list of
// routing rules evaluated top to bottom after the update has been applied.
// Compile checks that every node's table ends in an unconditional rule and
// only targets defined nodes, so a compiled Machine can always route.
//
// The Machine never lets a node failure escape: errors and panics become a
// terminal update and the run ends normally. Only context cancellation is
// returned to the caller, with the state left as it was before the
// interrupted node.
package runtime
