package worker

import (
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// PendingCall is an outstanding request awaiting its correlated reply.
type PendingCall struct {
	CallbackID string
	Hook       string
	IssuedAt   time.Time
	result     chan callResult
}

type callResult struct {
	msg Message
	err error
}

// pendingTable maps callback ids to outstanding calls. Entries are inserted
// on send and removed on reply, timeout, cancellation or termination.
type pendingTable struct {
	calls *xsync.MapOf[string, *PendingCall]
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: xsync.NewMapOf[string, *PendingCall]()}
}

// register stores a call under an id that is not currently outstanding.
func (t *pendingTable) register(hook string, issuedAt time.Time) *PendingCall {
	call := &PendingCall{Hook: hook, IssuedAt: issuedAt, result: make(chan callResult, 1)}
	for {
		id := uuid.NewString()
		call.CallbackID = id
		if _, loaded := t.calls.LoadOrStore(id, call); !loaded {
			return call
		}
	}
}

// resolve hands msg to the call it answers. It returns false when no call is
// waiting, which is the case for late replies.
func (t *pendingTable) resolve(msg Message) bool {
	call, ok := t.calls.LoadAndDelete(msg.CallbackID)
	if !ok {
		return false
	}
	call.result <- callResult{msg: msg}
	return true
}

func (t *pendingTable) remove(id string) {
	t.calls.Delete(id)
}

// rejectAll fails every outstanding call with err.
func (t *pendingTable) rejectAll(err error) int {
	n := 0
	t.calls.Range(func(id string, call *PendingCall) bool {
		if _, ok := t.calls.LoadAndDelete(id); ok {
			call.result <- callResult{err: err}
			n++
		}
		return true
	})
	return n
}

func (t *pendingTable) size() int {
	return t.calls.Size()
}
