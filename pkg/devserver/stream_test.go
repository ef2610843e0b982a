package devserver

import (
	"context"
	"testing"
	"time"

	"ai-workspace-editor/internal/pkg/logger"
	internalws "ai-workspace-editor/internal/websocket"

	fws "github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T) (*Server, *fws.Conn) {
	t.Helper()
	srv, err := New(Config{Users: map[string]string{"ada@example.com": "pw"}}, logger.NewNopLogger())
	require.NoError(t, err)
	addr, err := srv.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	token, _, err := srv.issueToken(srv.users["ada@example.com"].Id, tokenTypeAccess)
	require.NoError(t, err)

	conn, _, err := fws.DefaultDialer.Dial("ws://"+addr+"/chat/stream", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteJSON(internalws.Frame{Type: internalws.FrameAuth, Token: token}))

	require.Eventually(t, func() bool { return srv.Stats().ActiveStreams == 1 }, 2*time.Second, 10*time.Millisecond)
	return srv, conn
}

func TestDropStreamsWithoutCodeCutsConnection(t *testing.T) {
	srv, conn := dialStream(t)

	srv.DropStreams(0)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var closeErr *fws.CloseError
	assert.NotErrorAs(t, err, &closeErr, "no close frame expected")
	assert.False(t, isTimeout(err), "connection was left open")

	assert.Eventually(t, func() bool { return srv.Stats().ActiveStreams == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDropStreamsWithCodeSendsCloseFrame(t *testing.T) {
	srv, conn := dialStream(t)

	srv.DropStreams(fws.CloseGoingAway)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, fws.IsCloseError(err, fws.CloseGoingAway), "got %v", err)
	assert.Eventually(t, func() bool { return srv.Stats().ActiveStreams == 0 }, 2*time.Second, 10*time.Millisecond)
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}
