/*
Package errand is a task orchestrator for conversational assistants. It turns a
user's message into a task and drives that task through clarification,
planning, execution and validation, checkpointing after every step so a task
can pause for the user and resume on a later turn.

# Concept

Each task type (general, medicine, travel) compiles to a small state machine
whose nodes read a shared AgentState and return partial updates. The engine
merges those updates with per-field reducers, consults the node's routing
table and either moves on, pauses for input or stops. Tool calls of a plan run
in bounded batches through the tool registry.

# Key Features

  - Pause and Resume: a task that needs input returns a question; the next turn restores its checkpoint and continues where it stopped.
  - Graceful Degradation: malformed model output falls back to defaults instead of failing the task.
  - Pluggable Stores: in-memory, Redis, SQLite and PostgreSQL checkpoints, with optional encryption and PII masking.
  - Many Front Ends: HTTP with server-sent events, MCP tools and an interactive terminal chat.

# Usage

The errand binary wires everything from a YAML file and ERRAND_ environment
variables:

	errand serve --config errand.yaml
	errand chat --location Lisbon
	errand mcp --transport sse

Embedding the orchestrator directly is shown in the internal/orchestrator
examples.
*/
package errand
