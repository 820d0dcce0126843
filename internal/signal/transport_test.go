package signal_test

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	signalpkg "github.com/Veraticus/standin/internal/signal"
)

func TestUnixSocketTransportCloseIsIdempotent(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "signal.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(io.Discard, conn)
	}()

	transport, err := signalpkg.NewUnixSocketTransport(socketPath)
	require.NoError(t, err)

	require.NoError(t, transport.Close())
	// Shutdown can reach Close from more than one path; the second call must
	// be a no-op, not a panic.
	require.NoError(t, transport.Close())
}

func TestWebSocketTransportCloseIsIdempotent(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, upgradeErr := upgrader.Upgrade(w, r, nil)
		if upgradeErr != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	transport, err := signalpkg.NewWebSocketTransport(url)
	require.NoError(t, err)

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
}
