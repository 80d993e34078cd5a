package gateway

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/botkit/internal/config"
	"github.com/soyeahso/botkit/internal/logging"
	"github.com/soyeahso/botkit/internal/metrics"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestClientRegistry_AddRemove(t *testing.T) {
	m := metrics.New(nil)
	reg := NewClientRegistry(testLog(), m)
	assert.Equal(t, 0, reg.Count())

	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "client-1"}})
	reg.Add(&Client{ConnID: "conn-2"})
	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DevtoolsClients))

	reg.Remove("conn-1")
	reg.Remove("missing")
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DevtoolsClients))
}

func TestClientRegistry_CloseAll(t *testing.T) {
	m := metrics.New(nil)
	reg := NewClientRegistry(testLog(), m)

	// Already-closed clients never touch their nil sockets.
	reg.Add(&Client{ConnID: "conn-1", closed: true})
	reg.Add(&Client{ConnID: "conn-2", closed: true})

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.DevtoolsClients))
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &Client{ConnID: "conn-1", closed: true}
	assert.ErrorIs(t, c.Send(Frame{Type: FrameTypeEvent}), ErrClientClosed)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		name string
		bind string
		port int
		host string
		want string
	}{
		{"loopback", "loopback", 3978, "", "127.0.0.1:3978"},
		{"lan", "lan", 9999, "", "0.0.0.0:9999"},
		{"auto", "auto", 8080, "", "0.0.0.0:8080"},
		{"custom_default", "custom", 3000, "", "0.0.0.0:3000"},
		{"custom_host", "custom", 3000, "10.0.0.1", "10.0.0.1:3000"},
		{"empty_fallback", "", 5000, "", "127.0.0.1:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
			assert.Equal(t, tt.want, resolveBindAddr(cfg))
		})
	}
}
