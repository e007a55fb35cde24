/*
Package domain contains the core models of the errand task orchestrator.

It defines the state threaded through the phase machine, the typed partial
updates nodes return, and the reducers that fold those updates into state.
This package is kept pure and free of I/O, following Hexagonal Architecture
principles: persistence, transport and tools live behind pkg/ports.

# Key Entities

  - AgentState: the mutable record a task carries through its phases.
  - Update: a partial state change returned by a node; each field has a reducer.
  - GatheredInfo: typed known fields plus an Extra bag for dynamic extraction results.
  - ExecutionStep / Plan: the ordered tool invocations produced by planning.
  - Checkpoint: the durable snapshot used to resume a task across turns.
  - NodeID: the closed set of nodes a machine can route between.
*/
package domain
