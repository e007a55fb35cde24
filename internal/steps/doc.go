// Package steps runs plan steps against the tool registry.
//
// A batch is a run of consecutive pending steps calling the same tool,
// capped at DefaultBatchCap. Batches run on a bounded worker pool; results
// are always merged back in plan order, never completion order. A failing
// tool only fails its own step.
package steps
