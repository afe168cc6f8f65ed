package batching

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AdmissionPolicy governs what a writer does when every batch in the ring is
// busy.
type AdmissionPolicy string

const (
	// AdmissionReject fails fast with a rejected error.
	AdmissionReject AdmissionPolicy = "reject"
	// AdmissionBlock waits up to AdmissionTimeout for a batch to be recycled.
	AdmissionBlock AdmissionPolicy = "block"
)

// ParseAdmission accepts "reject" (alias "fail-fast") or "block".
func ParseAdmission(s string) (AdmissionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject", "fail-fast", "failfast":
		return AdmissionReject, nil
	case "block":
		return AdmissionBlock, nil
	default:
		return "", fmt.Errorf("unknown admission policy %q", s)
	}
}

// admit reserves a slot, applying the admission policy when the ring is
// saturated.
func (bt *Batcher) admit(ctx context.Context) (*Batch, int, uint64, error) {
	b, idx, gen, err := bt.ring.reserve()
	if err == nil {
		return b, idx, gen, nil
	}
	if bt.cfg.Admission != AdmissionBlock {
		return nil, 0, 0, rejectedError{reason: "ring saturated"}
	}

	// Register before re-checking so a recycle between the check and the
	// select still closes the channel we hold.
	bt.ring.waiters.Add(1)
	defer bt.ring.waiters.Add(-1)

	timer := time.NewTimer(bt.cfg.AdmissionTimeout)
	defer timer.Stop()
	for {
		recycled := bt.ring.recycledChan()
		if bt.closed.Load() {
			return nil, 0, 0, rejectedError{reason: "shutting down"}
		}
		b, idx, gen, err = bt.ring.reserve()
		if err == nil {
			return b, idx, gen, nil
		}
		select {
		case <-recycled:
		case <-ctx.Done():
			return nil, 0, 0, cancelledError{cause: ctx.Err()}
		case <-timer.C:
			return nil, 0, 0, rejectedError{reason: "ring saturated, waited " + bt.cfg.AdmissionTimeout.String()}
		}
	}
}
