package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teranos/entres/errors"
	"github.com/teranos/entres/logger"
	"github.com/teranos/entres/resolution"
	"github.com/teranos/entres/resolution/job"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum size of the resolution request a client sends
	maxMessageSize = maxBodySize

	// Events buffered between the job and a slow client
	eventBuffer = 256
)

// Stream message types
const (
	MessageEvent  = "event"
	MessageResult = "result"
	MessageError  = "error"
)

// StreamRequest is the one message a client sends on /ws/resolution
type StreamRequest struct {
	EntityType string            `json:"entity_type,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Input      json.RawMessage   `json:"input"`
}

// StreamMessage is a server message on /ws/resolution. Events come first,
// then exactly one result or error.
type StreamMessage struct {
	Type   string            `json:"type"`
	Event  *resolution.Event `json:"event,omitempty"`
	Status int               `json:"status,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  *errorBody        `json:"error,omitempty"`
}

// streamObserver hands job events to the connection writer. It blocks while
// the buffer is full so no event is lost, unless the stream is gone.
type streamObserver struct {
	ctx    context.Context
	events chan resolution.Event
}

func (o *streamObserver) OnEvent(e resolution.Event) {
	select {
	case o.events <- e:
	case <-o.ctx.Done():
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

// HandleResolutionWebSocket runs one job per connection and streams its events
func (s *Server) HandleResolutionWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err.Error())
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeStream(conn, streamFailure(errors.WrapInvalidRequest(err, "read resolution request"), false))
		return
	}
	if s.getState() != ServerStateRunning {
		s.writeStream(conn, streamFailure(errors.New("server is shutting down"), false))
		return
	}

	params := url.Values{}
	for k, v := range req.Params {
		params.Set(k, v)
	}
	opts, err := s.jobOptions(params)
	if err != nil {
		s.writeStream(conn, streamFailure(err, s.defaults.IncludeErrorTrace))
		return
	}

	obs := &streamObserver{ctx: ctx, events: make(chan resolution.Event, eventBuffer)}
	j, err := s.prepareJob(ctx, req.EntityType, req.Input, opts, obs)
	if err != nil {
		s.writeStream(conn, streamFailure(err, opts.IncludeErrorTrace))
		return
	}

	// A closed connection cancels the job
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	results := make(chan *job.Result, 1)
	done := s.track()
	defer done()
	if err := j.Run(ctx, func(res *job.Result) { results <- res }); err != nil {
		results <- j.Result()
	}

	for {
		select {
		case e := <-obs.events:
			if !s.writeStream(conn, StreamMessage{Type: MessageEvent, Event: &e}) {
				cancel()
				<-results
				return
			}
		case res := <-results:
			// Every event precedes the result in the buffer
			for drained := false; !drained; {
				select {
				case e := <-obs.events:
					s.writeStream(conn, StreamMessage{Type: MessageEvent, Event: &e})
				default:
					drained = true
				}
			}
			s.writeResult(conn, res)
			return
		}
	}
}

func (s *Server) writeResult(conn *websocket.Conn, res *job.Result) {
	data, err := res.Marshal()
	if err != nil {
		s.writeStream(conn, streamFailure(err, false))
		return
	}
	status := http.StatusOK
	if res.Failed {
		status = statusFor(res.Err)
	}
	if s.writeStream(conn, StreamMessage{Type: MessageResult, Status: status, Result: data}) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}
}

// writeStream writes one message, reporting whether the peer is still there
func (s *Server) writeStream(conn *websocket.Conn, msg StreamMessage) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debugw("WebSocket write failed", "type", msg.Type, logger.FieldError, err.Error())
		return false
	}
	return true
}

func streamFailure(err error, trace bool) StreamMessage {
	status := statusFor(err)
	if status == http.StatusOK {
		status = http.StatusInternalServerError
	}
	body := failureBody(status, err, trace)
	return StreamMessage{Type: MessageError, Status: status, Error: &body}
}
