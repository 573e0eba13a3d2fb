package ice

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(i int) webrtc.ICECandidateInit {
	mid := "0"
	idx := uint16(0)
	return webrtc.ICECandidateInit{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 10.0.0.%d 5000%d typ host", i, i, i),
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}

func TestOutboundBufferFlushesOnceOnAssignment(t *testing.T) {
	q := NewQueue()
	q.Reset("pending")

	for i := 0; i < 3; i++ {
		_, ok := q.AddLocal(candidate(i))
		require.False(t, ok)
	}

	flushed := q.AssignDestination("call-1")
	assert.Len(t, flushed, 3)
	assert.Nil(t, q.AssignDestination("call-1"))

	dest, ok := q.AddLocal(candidate(9))
	assert.True(t, ok)
	assert.Equal(t, "call-1", dest)
}

func TestInboundCandidatesAppliedExactlyOnceInAnyOrder(t *testing.T) {
	all := make([]webrtc.ICECandidateInit, 8)
	for i := range all {
		all[i] = candidate(i)
	}

	for seed := int64(0); seed < 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		q := NewQueue()
		q.Reset("call-1")

		applied := map[string]int{}
		apply := func(cs []webrtc.ICECandidateInit) {
			for _, c := range cs {
				applied[c.Candidate]++
			}
		}

		order := r.Perm(len(all))
		cut := r.Intn(len(all) + 1)

		// Snapshots replay everything received so far.
		var received []webrtc.ICECandidateInit
		for _, i := range order[:cut] {
			received = append(received, all[i])
			apply(q.AddRemoteAll(received))
		}
		assert.Empty(t, applied, "nothing applied before remote description")

		apply(q.RemoteDescriptionSet())
		for _, i := range order[cut:] {
			received = append(received, all[i])
			apply(q.AddRemoteAll(received))
		}
		apply(q.AddRemoteAll(received))
		apply(q.RemoteDescriptionSet())

		require.Len(t, applied, len(all), "seed %d", seed)
		for c, n := range applied {
			require.Equal(t, 1, n, "candidate %s applied %d times", c, n)
		}
	}
}

func TestResetClearsStateForNewCall(t *testing.T) {
	q := NewQueue()
	q.Reset("call-1")
	q.AssignDestination("call-1")
	q.RemoteDescriptionSet()
	require.True(t, q.AddRemote(candidate(1)))
	require.False(t, q.AddRemote(candidate(1)))

	q.Reset("call-1")
	assert.True(t, q.RemoteReady(), "same call id keeps state")

	q.Reset("call-2")
	assert.False(t, q.RemoteReady())
	assert.Equal(t, "call-2", q.CallID())
	assert.False(t, q.AddRemote(candidate(1)), "buffered until remote description")
	assert.Len(t, q.RemoteDescriptionSet(), 1)

	_, ok := q.AddLocal(candidate(2))
	assert.False(t, ok)
}
