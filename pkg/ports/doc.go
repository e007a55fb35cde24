/*
Package ports defines the driven ports (interfaces) for the errand orchestrator.

These interfaces decouple the core logic from external implementations, allowing
the orchestrator to work with various storage backends, lock services, event
buses and geocoders.

# Key Interfaces

  - CheckpointStore: persists and restores the durable snapshot of a task.
  - TaskRepository: resolves sessions, tasks and guest identities.
  - DistributedLocker: provides distributed locking for concurrent task access.
  - EventPublisher: fans task progress out to external subscribers.
  - Locator: turns an address or client IP into a Location.
*/
package ports
