// Package ice buffers ICE candidates on both sides of a negotiation.
//
// Outbound candidates wait until the signaling document id is known.
// Inbound candidates wait until the peer connection has a remote
// description. Both buffers flush exactly once, and inbound candidates are
// deduplicated by content so replayed snapshots are harmless.
package ice

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v3"
)

type Queue struct {
	mu sync.Mutex

	callID string

	destination string
	outbound    []webrtc.ICECandidateInit

	remoteReady bool
	inbound     []webrtc.ICECandidateInit
	seen        map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{seen: make(map[string]struct{})}
}

// Reset scopes the queue to callID. Observing a different call id drops
// every buffer and the dedup set; the same id is a no-op.
func (q *Queue) Reset(callID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.callID == callID {
		return
	}
	q.callID = callID
	q.destination = ""
	q.outbound = nil
	q.remoteReady = false
	q.inbound = nil
	q.seen = make(map[string]struct{})
}

func (q *Queue) CallID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.callID
}

// AddLocal records a locally gathered candidate. When the destination is
// already known it returns it with ok=true and the caller sends immediately;
// otherwise the candidate is buffered.
func (q *Queue) AddLocal(c webrtc.ICECandidateInit) (destination string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destination != "" {
		return q.destination, true
	}
	q.outbound = append(q.outbound, c)
	return "", false
}

// AssignDestination sets the document id and returns the buffered local
// candidates to send. Only the first assignment returns anything.
func (q *Queue) AssignDestination(id string) []webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.destination != "" || id == "" {
		return nil
	}
	q.destination = id
	pending := q.outbound
	q.outbound = nil
	return pending
}

// AddRemote records a candidate received from the counterpart. It returns
// true when the caller should apply it now. Duplicates and candidates that
// arrive before the remote description return false.
func (q *Queue) AddRemote(c webrtc.ICECandidateInit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := candidateKey(c)
	if _, dup := q.seen[key]; dup {
		return false
	}
	q.seen[key] = struct{}{}
	if !q.remoteReady {
		q.inbound = append(q.inbound, c)
		return false
	}
	return true
}

// AddRemoteAll is AddRemote over a whole snapshot; it returns the
// candidates to apply now, in snapshot order.
func (q *Queue) AddRemoteAll(cs []webrtc.ICECandidateInit) []webrtc.ICECandidateInit {
	var apply []webrtc.ICECandidateInit
	for _, c := range cs {
		if q.AddRemote(c) {
			apply = append(apply, c)
		}
	}
	return apply
}

// RemoteDescriptionSet marks the peer connection ready and returns the
// buffered inbound candidates. Only the first call returns anything.
func (q *Queue) RemoteDescriptionSet() []webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.remoteReady {
		return nil
	}
	q.remoteReady = true
	pending := q.inbound
	q.inbound = nil
	return pending
}

func (q *Queue) RemoteReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remoteReady
}

func candidateKey(c webrtc.ICECandidateInit) string {
	b, err := json.Marshal(c)
	if err != nil {
		return c.Candidate
	}
	return string(b)
}
