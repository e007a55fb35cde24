// Package nodes implements the generic phase transforms shared by every
// agent: clarification, planning, execution, validation and the
// confirmation loop. Each constructor returns a runtime.NodeFunc bound to a
// Profile that carries the task type's fields, plans and result mergers.
package nodes
