package moderation

import (
	"context"
	"sync"

	"dutybot/internal/event"
	"dutybot/internal/notify"
	"dutybot/pkg/platform/sentinel"
)

// MemoryLedger keeps pending requests in memory behind one mutex; the
// check-and-flip in Decide is atomic because the whole method holds it.
// Request ids are monotonic for the process lifetime.
type MemoryLedger struct {
	mu     sync.Mutex
	nextID uint64
	reqs   map[uint64]*Request
}

func NewMemoryLedger() *MemoryLedger {
	return NewMemoryLedgerFrom(1)
}

// NewMemoryLedgerFrom starts the id sequence at next, letting a restarted
// process continue past the highest durably stored id.
func NewMemoryLedgerFrom(next uint64) *MemoryLedger {
	if next == 0 {
		next = 1
	}
	return &MemoryLedger{nextID: next, reqs: make(map[uint64]*Request)}
}

func (l *MemoryLedger) Add(_ context.Context, req *Request) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req.ID = l.nextID
	l.nextID++
	req.Status = StatusPending
	if req.Deliveries == nil {
		req.Deliveries = make(map[int64]notify.MessageHandle)
	}
	l.reqs[req.ID] = req
	return req.ID, nil
}

func (l *MemoryLedger) Get(_ context.Context, id uint64) (*Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.reqs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return snapshot(req), nil
}

func (l *MemoryLedger) Decide(_ context.Context, id uint64, d Decision) (*Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.reqs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if req.Status != StatusPending {
		return snapshot(req), sentinel.ErrAlreadyDecided
	}
	if d.Outcome == event.ActionApprove {
		req.Status = StatusApproved
	} else {
		req.Status = StatusRejected
	}
	req.DecidedBy = d.ReviewerID
	req.DecidedByName = d.ReviewerName
	req.DecideReason = d.Reason
	req.DecidedAt = d.At
	return snapshot(req), nil
}

func (l *MemoryLedger) TrackDelivery(_ context.Context, id uint64, reviewerID int64, handle notify.MessageHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.reqs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	req.Deliveries[reviewerID] = handle
	return nil
}

func (l *MemoryLedger) Remove(_ context.Context, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reqs, id)
	return nil
}

func (l *MemoryLedger) PendingCount(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, req := range l.reqs {
		if req.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func snapshot(req *Request) *Request {
	cp := *req
	cp.Fields = make(map[string]string, len(req.Fields))
	for k, v := range req.Fields {
		cp.Fields[k] = v
	}
	cp.Evidence = append([]string(nil), req.Evidence...)
	cp.Deliveries = make(map[int64]notify.MessageHandle, len(req.Deliveries))
	for k, v := range req.Deliveries {
		cp.Deliveries[k] = v
	}
	return &cp
}
