package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hotelling/internal/turn"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	s := testSession()
	s.AutoStart = false
	hub, _ := startHub(t, s)
	srv := httptest.NewServer(NewServer("127.0.0.1:0", hub, testLogger()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "text/plain", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestServerHealth(t *testing.T) {
	t.Parallel()
	srv := newTestGateway(t)

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
}

func TestPollingGateway(t *testing.T) {
	t.Parallel()
	srv := newTestGateway(t)

	code, body := get(t, srv.URL+"/ask_init/f0")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "reply/reply_init/0/0/firm/active/"), body)

	_, body = get(t, srv.URL+"/ask_end_of_init/0/0")
	assert.Equal(t, "error/wait_init/ask_end_of_init/0/0", body)

	_, body = get(t, srv.URL+"/ask_nothing")
	assert.Equal(t, `Command contained in request not understood: unknown method "ask_nothing"`, body)
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestGateway(t)

	for _, dev := range []string{"f0", "f1", "c0", "c1"} {
		get(t, srv.URL+"/ask_init/"+dev)
	}

	var status Status
	code, body := get(t, srv.URL+"/admin/status")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, turn.AwaitingInit, status.Snapshot.Phase)
	assert.False(t, status.Snapshot.Ready)
	require.Len(t, status.Slots, 4)
	assert.NotNil(t, status.Slots[0].LastSeen)

	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/admin/start"))
	_, body = get(t, srv.URL+"/ask_end_of_init/3/0")
	assert.Equal(t, "reply/reply_end_of_init/0", body)

	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/admin/save"))
	assert.Equal(t, http.StatusOK, post(t, srv.URL+"/admin/stop"))

	_, body = get(t, srv.URL+"/admin/status")
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.True(t, status.Snapshot.StopRequested)
}

func TestWebSocketGateway(t *testing.T) {
	t.Parallel()
	srv := newTestGateway(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	exchange := func(line string) string {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		kind, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, kind)
		return string(data)
	}

	first := exchange("ask_init/tablet")
	assert.True(t, strings.HasPrefix(first, "reply/reply_init/0/0/firm/active/"), first)
	assert.Equal(t, first, exchange("ask_init/tablet"))
	assert.Equal(t, "error/wait_init/ask_firm_opponent_choice/0/0", exchange("ask_firm_opponent_choice/0/0"))
}
