package batching

import (
	"time"

	"batchd/pkg/types"
)

// Ready reports whether the pool still admits requests.
func (p *Pool) Ready() bool { return !p.Closed() }

// Status builds a detailed status response for /status.
func (p *Pool) Status() types.StatusResponse {
	now := time.Now()
	resp := types.StatusResponse{
		State:          "ready",
		InputShape:     p.InputShape().String(),
		UptimeSeconds:  int64(now.Sub(p.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if p.Closed() {
		resp.State = "draining"
	}
	if out := p.OutputShape(); len(out.Dims) > 0 {
		resp.OutputShape = out.String()
	}
	for _, rs := range p.Snapshot() {
		ring := types.RingStatus{
			Name:     rs.Name,
			Current:  rs.Current,
			Capacity: rs.Capacity,
			Closed:   rs.Closed,
			Batches:  make([]types.BatchStatus, 0, len(rs.Batches)),
		}
		for _, b := range rs.Batches {
			ring.Batches = append(ring.Batches, types.BatchStatus{
				Index:      b.Index,
				State:      b.State,
				Cursor:     b.Cursor,
				Completed:  b.Completed,
				Generation: b.Generation,
			})
		}
		resp.Rings = append(resp.Rings, ring)
	}
	return resp
}
