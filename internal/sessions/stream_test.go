package sessions

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type streamFrame struct {
	Type string `json:"type"`
	View *struct {
		State string `json:"state"`
		Draft struct {
			ServiceID string `json:"service_id"`
		} `json:"draft"`
	} `json:"view"`
}

func receiveFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f streamFrame
	require.NoError(t, websocket.JSON.Receive(conn, &f))
	return f
}

func TestEventStream(t *testing.T) {
	api, _ := newTestAPI(t, &stubBackend{})
	id := api.createReady("amina")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/v1/sessions/" + id + "/events"
	conn, err := websocket.Dial(wsURL, "", api.server.URL)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := receiveFrame(t, conn)
	assert.Equal(t, "snapshot", snapshot.Type)
	require.NotNil(t, snapshot.View)
	assert.Equal(t, "Ready", snapshot.View.State)

	require.NoError(t, websocket.JSON.Send(conn, map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", receiveFrame(t, conn).Type)

	api.json(http.MethodPut, "/v1/sessions/"+id+"/service", `{"service_id":"s1"}`, http.StatusOK)
	evt := receiveFrame(t, conn)
	assert.Equal(t, "draft_updated", evt.Type)
	assert.Equal(t, "s1", evt.View.Draft.ServiceID)

	resp, _ := api.do(http.MethodDelete, "/v1/sessions/"+id, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "closed", receiveFrame(t, conn).Type)
}

func TestEventStreamUnknownSession(t *testing.T) {
	api, _ := newTestAPI(t, &stubBackend{})
	resp, _ := api.do(http.MethodGet, "/v1/sessions/missing/events", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
