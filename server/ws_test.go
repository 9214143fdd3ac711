package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(t *testing.T, s *Server, req StreamRequest) []StreamMessage {
	t.Helper()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/resolution", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(req))

	var msgs []StreamMessage
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		msgs = append(msgs, msg)
		if msg.Type != MessageEvent {
			break
		}
	}
	require.NotEmpty(t, msgs)
	return msgs
}

func eventTypes(msgs []StreamMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Type == MessageEvent {
			out = append(out, string(m.Event.Type))
		}
	}
	return out
}

func TestResolutionWebSocket(t *testing.T) {
	s := newTestServer(t, nil)
	msgs := stream(t, s, StreamRequest{
		EntityType: "person",
		Params:     map[string]string{"max_hops": "1"},
		Input:      json.RawMessage(`{"attributes": {"email": "neo@zion.net"}}`),
	})

	assert.Equal(t, []string{
		"state_changed",
		"hop_started",
		"query_completed",
		"query_completed",
		"hop_completed",
		"state_changed",
	}, eventTypes(msgs))
	assert.Equal(t, "running", string(msgs[0].Event.State))
	assert.Equal(t, "person", msgs[0].Event.EntityType)

	last := msgs[len(msgs)-1]
	require.Equal(t, MessageResult, last.Type)
	assert.Equal(t, http.StatusOK, last.Status)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(last.Result, &result))
	assert.Equal(t, "max hops", result["termination"])
	assert.Equal(t, float64(1), result["hits"].(map[string]interface{})["total"])
}

func TestResolutionWebSocket_Rejected(t *testing.T) {
	s := newTestServer(t, nil)
	msgs := stream(t, s, StreamRequest{
		EntityType: "agent",
		Input:      json.RawMessage(`{"attributes": {"email": "smith@matrix.gov"}}`),
	})

	require.Len(t, msgs, 1)
	assert.Equal(t, MessageError, msgs[0].Type)
	assert.Equal(t, http.StatusNotFound, msgs[0].Status)
	assert.Equal(t, "not_found_exception", msgs[0].Error.Error.Type)
}

func TestResolutionWebSocket_NoQueries(t *testing.T) {
	s := newTestServer(t, nil)
	msgs := stream(t, s, StreamRequest{
		EntityType: "person",
		Input:      json.RawMessage(`{"attributes": {"age": 37}}`),
	})

	assert.Equal(t, []string{"state_changed"}, eventTypes(msgs))
	assert.Equal(t, "failed", string(msgs[0].Event.State))

	last := msgs[len(msgs)-1]
	require.Equal(t, MessageResult, last.Type)
	assert.Equal(t, http.StatusBadRequest, last.Status)
}
