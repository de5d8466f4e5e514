package gateway

import (
	"testing"

	"github.com/soyeahso/taskpilot/internal/config"
	"github.com/soyeahso/taskpilot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestClientRegistry(t *testing.T) {
	reg := NewClientRegistry(testLog())
	require.NotNil(t, reg)
	assert.Zero(t, reg.Count())

	a1 := &Client{ConnID: "conn-1", UserID: "alice", ClientID: "cli"}
	a2 := &Client{ConnID: "conn-2", UserID: "alice"}
	b := &Client{ConnID: "conn-3", UserID: "bob"}
	reg.Add(a1)
	reg.Add(a2)
	reg.Add(b)
	reg.Add(b)
	assert.Equal(t, 3, reg.Count())
	assert.Len(t, reg.byUser["alice"], 2)

	reg.Remove(a1)
	reg.Remove(a1)
	reg.Remove(&Client{ConnID: "nonexistent", UserID: "carol"})
	assert.Equal(t, 2, reg.Count())

	reg.Remove(b)
	assert.NotContains(t, reg.byUser, "bob")
	assert.Equal(t, 1, reg.Count())
}

func TestClientRegistry_CloseAll(t *testing.T) {
	reg := NewClientRegistry(testLog())

	// Already-closed clients skip the socket.
	reg.Add(&Client{ConnID: "conn-1", UserID: "alice", closed: true})
	reg.Add(&Client{ConnID: "conn-2", UserID: "bob", closed: true})

	reg.CloseAll()
	assert.Zero(t, reg.Count())
	assert.Empty(t, reg.byUser)
}

func TestClientRegistry_SendToUser(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "conn-1", UserID: "alice", closed: true})
	reg.Add(&Client{ConnID: "conn-2", UserID: "bob", closed: true})

	// Closed connections are skipped, not counted.
	assert.Zero(t, reg.SendToUser("alice", EventToolExecuted, nil))
	assert.Zero(t, reg.SendToUser("carol", EventToolExecuted, nil))
	assert.Equal(t, int64(1), reg.seq, "only pushes with a recipient consume a sequence number")
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &Client{ConnID: "conn-1", closed: true}
	assert.ErrorIs(t, c.respond("1", map[string]any{}), ErrClientClosed)
	assert.ErrorIs(t, c.fail("2", CodeNotFound, "x"), ErrClientClosed)
	assert.NoError(t, c.Close())
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 8787, "", "127.0.0.1:8787"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom default", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"unknown falls back", "whatever", 5000, "", "127.0.0.1:5000"},
		{"empty falls back", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
