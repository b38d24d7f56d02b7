package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	failing bool
	closed  bool
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestWSHub_SendToAllDevices(t *testing.T) {
	hub := NewWSHub()
	phone, laptop := &fakeConn{}, &fakeConn{}
	hub.Register("u1", phone)
	hub.Register("u1", laptop)
	require.True(t, hub.IsOnline("u1"))
	require.False(t, hub.IsOnline("u2"))

	require.NoError(t, hub.SendToUser("u1", WSMessage{Type: FrameNotification, Title: "Hi"}))
	for _, c := range []*fakeConn{phone, laptop} {
		require.Len(t, c.written, 1)
		var got WSMessage
		require.NoError(t, json.Unmarshal(c.written[0], &got))
		assert.Equal(t, FrameNotification, got.Type)
		assert.Equal(t, "Hi", got.Title)
	}

	require.Error(t, hub.SendToUser("u2", WSMessage{Type: FramePing}))
}

func TestWSHub_DropsFailingConnection(t *testing.T) {
	hub := NewWSHub()
	good, bad := &fakeConn{}, &fakeConn{failing: true}
	hub.Register("u1", good)
	hub.Register("u1", bad)

	require.NoError(t, hub.SendToUser("u1", WSMessage{Type: FramePong}))
	assert.True(t, bad.closed)
	assert.False(t, good.closed)

	good.failing = true
	require.Error(t, hub.SendToUser("u1", WSMessage{Type: FramePong}))
	assert.False(t, hub.IsOnline("u1"))
}

func TestWSHub_UnregisterAndCloseAll(t *testing.T) {
	hub := NewWSHub()
	a := hub.Register("u1", &fakeConn{})
	other := &fakeConn{}
	hub.Register("u2", other)

	hub.Unregister(a)
	assert.False(t, hub.IsOnline("u1"))
	// unregistering twice is harmless
	hub.Unregister(a)

	hub.CloseAll()
	assert.True(t, other.closed)
	assert.False(t, hub.IsOnline("u2"))
}
