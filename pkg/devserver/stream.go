package devserver

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	internalws "ai-workspace-editor/internal/websocket"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	authWait       = 10 * time.Second
	idleWait       = 5 * time.Minute
	maxMessageSize = 8 * 1024 * 1024
	sendBuffer     = 256
)

// streamClient is a middleman between one websocket connection and the responder.
type streamClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userId string

	// Buffered channel of outbound frames.
	send chan []byte
	done chan struct{}
	once sync.Once

	// respondMu keeps replies to back-to-back requests from interleaving.
	respondMu sync.Mutex

	// connMu guards conn once the handler has returned and fiber recycled it.
	connMu   sync.Mutex
	released bool

	// cut is set once the connection has been dropped without a close frame.
	cut atomic.Bool
}

func (c *streamClient) release() {
	c.connMu.Lock()
	c.released = true
	c.connMu.Unlock()
}

func (c *streamClient) write(message []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.released {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// closeWith sends a close frame with code and drops the connection.
// Closing a hijacked conn is a no-op under fiber, so code 0 expires the read
// deadline instead: the handler returns and fasthttp closes the TCP socket.
func (c *streamClient) closeWith(code int) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.released {
		return
	}
	if code == 0 {
		c.cut.Store(true)
		_ = c.conn.SetReadDeadline(time.Now())
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(writeWait))
	_ = c.conn.Close()
}

func (c *streamClient) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *streamClient) enqueue(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

// writePump pumps frames from the send buffer to the websocket connection.
func (c *streamClient) writePump() {
	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) serveStream(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)

	// 1. The first frame must authenticate the connection
	_ = conn.SetReadDeadline(time.Now().Add(authWait))
	userId, ok := s.authenticateStream(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
			time.Now().Add(writeWait))
		return
	}
	atomic.AddInt64(&s.streamAuths, 1)

	// 2. Register and start writing
	client := &streamClient{
		hub:    s.hub,
		conn:   conn,
		userId: userId,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	s.hub.add(client)
	defer client.release()
	defer s.hub.remove(client)
	go client.writePump()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Read until quit or disconnect
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleWait))
		if client.cut.Load() {
			return
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn(logModule, "Stream read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req internalws.StreamRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn(logModule, "Malformed frame from client", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch req.Type {
		case internalws.FramePing:
			client.enqueue(internalws.Frame{Type: internalws.FramePong})
		case internalws.FrameStream:
			atomic.AddInt64(&s.streamRequests, 1)
			go s.respond(ctx, client, req)
		case internalws.FrameQuit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) authenticateStream(conn *websocket.Conn) (string, bool) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	var frame internalws.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != internalws.FrameAuth {
		s.logger.Warn(logModule, "First stream frame was not auth", nil)
		return "", false
	}
	userId, err := s.verifyToken(frame.Token, tokenTypeAccess)
	if err != nil {
		s.logger.Warn(logModule, "Stream auth rejected", map[string]interface{}{"error": err.Error()})
		return "", false
	}
	return userId, true
}

func (s *Server) respond(ctx context.Context, client *streamClient, req internalws.StreamRequest) {
	client.respondMu.Lock()
	defer client.respondMu.Unlock()

	reply, err := s.cfg.Responder(ctx, req.ChatRequest)
	if err != nil {
		s.logger.Error(logModule, "Responder failed", map[string]interface{}{"error": err.Error()})
		reply = Reply{ContentChunks: []string{"Error: " + err.Error()}}
	}

	frames := make([]internalws.Frame, 0, len(reply.ThinkChunks)+len(reply.ContentChunks)+len(reply.EditedChunks)+1)
	for _, chunk := range reply.ThinkChunks {
		frames = append(frames, internalws.Frame{Type: internalws.FrameStream, ThinkChunk: chunk})
	}
	for _, chunk := range reply.ContentChunks {
		frames = append(frames, internalws.Frame{Type: internalws.FrameStream, ContentChunk: chunk})
	}
	for _, chunk := range reply.EditedChunks {
		frames = append(frames, internalws.Frame{Type: internalws.FrameStream, EditedChunk: chunk})
	}
	frames = append(frames, internalws.Frame{
		Type:                   internalws.FrameStreamEnd,
		EditedArticleRelatedTo: reply.EditedArticleRelatedTo,
		OtherData:              reply.OtherData,
	})

	for _, f := range frames {
		if s.cfg.ChunkDelay > 0 {
			select {
			case <-time.After(s.cfg.ChunkDelay):
			case <-ctx.Done():
				return
			}
		}
		if !client.enqueue(f) {
			return
		}
	}
}
