package common

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota volume cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an account.
type QuotaNow struct {
	ReqCount   uint32
	VolumeUsed uint64
	EpochID    uint64
}

// Quota defines the limits enforced for a module interaction per account.
// Zero disables the respective limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxVolumePerEpoch   uint64
	EpochSeconds        uint32
}

// Epoch maps a millisecond timestamp onto the quota epoch it falls in.
func (q Quota) Epoch(nowMs uint64) uint64 {
	if q.EpochSeconds == 0 {
		return 0
	}
	return nowMs / (uint64(q.EpochSeconds) * 1000)
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxVolumePerEpoch > 0
}

// CheckQuota verifies whether the additional request and volume fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addVolume uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.VolumeUsed > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.VolumeUsed += addVolume
	}
	if q.MaxVolumePerEpoch > 0 && next.VolumeUsed > q.MaxVolumePerEpoch {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}

// QuotaTracker keeps per-account counters for a single Quota.
type QuotaTracker struct {
	quota Quota

	mu       sync.Mutex
	counters map[string]QuotaNow
}

// NewQuotaTracker constructs a tracker enforcing q.
func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, counters: make(map[string]QuotaNow)}
}

// Consume charges one request and volume against account. Counters are left
// untouched when the quota rejects the charge.
func (t *QuotaTracker) Consume(account string, nowMs uint64, volume uint64) error {
	if t == nil || !t.quota.Enabled() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := CheckQuota(t.quota, t.quota.Epoch(nowMs), t.counters[account], 1, volume)
	if err != nil {
		return err
	}
	t.counters[account] = next
	return nil
}

// Refund returns a charge made by Consume at nowMs whose operation did not go
// through. Charges from an earlier epoch have already been reset and are
// ignored.
func (t *QuotaTracker) Refund(account string, nowMs uint64, volume uint64) {
	if t == nil || !t.quota.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.counters[account]
	if !ok || current.EpochID != t.quota.Epoch(nowMs) {
		return
	}
	if current.ReqCount > 0 {
		current.ReqCount--
	}
	if current.VolumeUsed >= volume {
		current.VolumeUsed -= volume
	} else {
		current.VolumeUsed = 0
	}
	t.counters[account] = current
}
