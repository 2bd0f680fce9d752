package connection

import (
	"time"

	"github.com/google/uuid"

	purchasing "github.com/purchasekit/purchasing"
)

// Request is a retrieval or fetch captured at submission time, with its callbacks.
type Request struct {
	ID          uuid.UUID
	Kind        string
	SubmittedAt time.Time

	service func()
	fail    func(purchasing.RetrievalFailureReason)
}

// NewRequest creates a request. service forwards it to the client; fail reports
// that it could not be serviced right now.
func NewRequest(kind string, service func(), fail func(purchasing.RetrievalFailureReason)) *Request {
	return &Request{
		ID:          uuid.New(),
		Kind:        kind,
		SubmittedAt: time.Now(),
		service:     service,
		fail:        fail,
	}
}

// RequestQueue buffers requests submitted while the client is not connected.
// It is owned by a Connection and not safe for concurrent use.
type RequestQueue struct {
	items []*Request
}

// Enqueue appends a request
func (q *RequestQueue) Enqueue(r *Request) {
	q.items = append(q.items, r)
}

// Len returns the number of queued requests
func (q *RequestQueue) Len() int {
	return len(q.items)
}

// Drain services or fails queued requests according to the current state.
//
// While the state is Connected each request is serviced. While Disconnected each
// request is failed, with BillingServiceUnavailable once exhausted reports true, and
// kept for a later drain. Draining stops as soon as the state is Connecting.
// Failed requests go back to the tail, behind anything submitted during the drain.
func (q *RequestQueue) Drain(state func() State, exhausted func() bool) {
	var failed []*Request
	for len(q.items) > 0 {
		current := state()
		if current == Connecting {
			break
		}
		r := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]

		switch current {
		case Connected:
			r.service()
		case Disconnected:
			reason := purchasing.BillingServiceDisconnected
			if exhausted() {
				reason = purchasing.BillingServiceUnavailable
			}
			r.fail(reason)
			failed = append(failed, r)
		}
	}
	q.items = append(q.items, failed...)
}
