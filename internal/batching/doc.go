// Package batching assembles fixed-shape tensors from many concurrent callers
// into micro-batches and recycles the batch memory across dispatch cycles.
// It is structured into small files by concern:
//
//   - word.go: the packed (cursor, completed, state, generation) batch word.
//   - batch.go: Batch, its slots and the lock-free reserve/write/close/deliver protocol.
//   - ring.go: Ring, the fixed circular array of batches and the current-batch cursor.
//   - handle.go: Handle, the per-request exactly-once wait/notify primitive.
//   - dispatcher.go: the consumer loop that closes, executes and drains batches.
//   - admission.go: what a writer does when every batch in the ring is busy.
//   - batcher.go: Batcher, the Submit/Enqueue facade over one ring + dispatcher.
//   - pool.go: Pool, several independent Batchers sharing traffic.
//   - config.go: Config and package defaults.
//   - errors.go: error types and helpers (IsRejected, IsExecutorFailed, IsCancelled).
//   - events.go: lifecycle events for metrics/logging layers.
//
// Writers never take a lock: a slot is claimed with a CAS on the batch word,
// filled with a plain copy and committed with a second CAS. Only the
// dispatcher ever blocks, on the executor call.
//
// All operations in sync/atomic are sequentially consistent, so the
// release/acquire pairing between a writer's commit and the dispatcher's
// all-writes-done check needs no extra fences.
package batching
