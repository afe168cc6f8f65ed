// Package executor provides the batch executors batchd can run behind a ring.
//
// Files by concern:
//   - executor.go: Options and New, selecting an executor by kind
//   - local.go: in-process executors (Echo, Scale)
//   - remote.go: Remote, which posts each batch to an HTTP inference backend
//
// Every executor implements batching.Executor: one call per dispatched batch,
// exactly Count outputs matched to inputs by index.
package executor
