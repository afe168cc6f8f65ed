package batching

// BatchSnapshot is a read-only projection of one batch.
type BatchSnapshot struct {
	Index      int
	State      string
	Cursor     int
	Completed  int
	Generation uint64
}

// RingSnapshot is a read-only projection of one ring and its batches.
type RingSnapshot struct {
	Name     string
	Current  uint64
	Capacity int
	Closed   bool
	Batches  []BatchSnapshot
}
