package peer

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionOfferAnswer(t *testing.T) {
	ctx := context.Background()
	factory := NewPionFactory(nil, nil)

	caller, err := factory.NewConnection()
	require.NoError(t, err)
	defer caller.Close()

	callee, err := factory.NewConnection()
	require.NoError(t, err)
	defer callee.Close()

	offer, err := caller.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")
	assert.Contains(t, offer.SDP, "m=audio")
	require.NoError(t, caller.SetLocalDescription(offer))

	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	require.NoError(t, callee.SetLocalDescription(answer))

	require.NoError(t, caller.SetRemoteDescription(answer))
}

func TestPionCreateOfferHonoursContext(t *testing.T) {
	conn, err := NewPionFactory(nil, nil).NewConnection()
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = conn.CreateOffer(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromPionState(t *testing.T) {
	assert.Equal(t, StateConnected, fromPionState(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, StateFailed, fromPionState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, StateNew, fromPionState(webrtc.PeerConnectionStateUnknown))
}
