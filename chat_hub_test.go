package buildtrack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrack/buildtrack"
)

func drain(c *buildtrack.HubClient) [][]byte {
	var out [][]byte
	for {
		select {
		case payload, ok := <-c.Outbox():
			if !ok {
				return out
			}
			out = append(out, payload)
		default:
			return out
		}
	}
}

func TestHubJoinAndBroadcast(t *testing.T) {
	hub := buildtrack.NewChatHub(nil)

	alice := hub.NewClient()
	bob := hub.NewClient()
	carol := hub.NewClient()

	hub.Join(alice, "site-1")
	hub.Join(bob, "site-1")
	hub.Join(carol, "site-2")

	hub.Broadcast("site-1", []byte("hello"))

	assert.Len(t, drain(alice), 1, "sender's room gets the frame")
	assert.Len(t, drain(bob), 1)
	assert.Empty(t, drain(carol), "other rooms stay quiet")
}

func TestHubRejoinSwitchesRoom(t *testing.T) {
	hub := buildtrack.NewChatHub(nil)

	alice := hub.NewClient()
	hub.Join(alice, "site-1")
	hub.Join(alice, "site-2")

	assert.Equal(t, 0, hub.RoomSize("site-1"), "joining a new room leaves the old one")
	assert.Equal(t, 1, hub.RoomSize("site-2"))
	assert.Equal(t, "site-2", alice.SiteID())

	hub.Broadcast("site-1", []byte("old room"))
	assert.Empty(t, drain(alice))

	hub.Broadcast("site-2", []byte("new room"))
	assert.Len(t, drain(alice), 1)
}

func TestHubLeave(t *testing.T) {
	hub := buildtrack.NewChatHub(nil)

	alice := hub.NewClient()
	hub.Join(alice, "site-1")
	hub.Leave(alice)

	assert.Equal(t, 0, hub.RoomSize("site-1"))
	assert.False(t, alice.Send([]byte("late")), "a departed client accepts nothing")

	// double leave must not panic
	hub.Leave(alice)

	hub.Broadcast("site-1", []byte("after leave"))

	_, open := <-alice.Outbox()
	assert.False(t, open, "outbox closes on leave")
}

func TestHubSlowClientDropsFrames(t *testing.T) {
	hub := buildtrack.NewChatHub(nil)

	slow := hub.NewClient()
	hub.Join(slow, "site-1")

	// the outbox holds a bounded number of frames; the overflow is dropped
	// rather than blocking the broadcaster
	for i := 0; i < 100; i++ {
		hub.Broadcast("site-1", []byte("frame"))
	}

	frames := drain(slow)
	require.NotEmpty(t, frames)
	assert.Less(t, len(frames), 100)
}
