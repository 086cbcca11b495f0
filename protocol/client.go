package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReconnectPolicy controls what happens after the connection drops.
// MaxAttempts is carried from configuration but the client schedules exactly
// one attempt per disconnect; the field is not used as a counter.
type ReconnectPolicy struct {
	Enabled     bool
	Delay       time.Duration
	MaxAttempts int
}

// Client owns one persistent OneBot connection. Inbound frames are processed
// sequentially on a single read goroutine; outbound writes are serialized by
// a write mutex so the read loop, the heartbeat ticker and game-side callers
// may all send concurrently.
type Client struct {
	endpoint  string
	heartbeat time.Duration
	reconnect ReconnectPolicy
	handler   Handler

	writeMu sync.Mutex
	conn    *websocket.Conn

	connected atomic.Bool
	closing   atomic.Bool

	hbMu   sync.Mutex
	hbStop chan struct{}
}

// NewClient builds a client; SetHandler then Connect to start receiving.
func NewClient(endpoint string, heartbeat time.Duration, reconnect ReconnectPolicy) *Client {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Client{
		endpoint:  endpoint,
		heartbeat: heartbeat,
		reconnect: reconnect,
	}
}

// SetHandler registers the event handler. Must be called before Connect.
func (c *Client) SetHandler(handler Handler) {
	c.handler = handler
}

// Connect dials the endpoint and starts the read loop and heartbeat ticker.
// A first-connect failure is returned to the caller; no retry is scheduled.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return err
	}
	c.start(conn)
	zap.S().Named("protocol").Infof("connected to %s", c.endpoint)
	return nil
}

// Connected reports whether the connection is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Close tears the connection down intentionally. A reconnect already
// scheduled before Close will still fire and no-op.
func (c *Client) Close() {
	c.closing.Store(true)
	c.stopHeartbeat()

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()

	c.connected.Store(false)
	if conn != nil {
		_ = conn.Close()
	}
}

// SendAction serializes the {action, params} envelope and transmits it.
// Fire and forget: no acknowledgement is awaited.
func (c *Client) SendAction(action string, params any) error {
	return c.send(actionEnvelope{Action: action, Params: params})
}

// SendPrivate sends text to a private chat.
func (c *Client) SendPrivate(userID int64, text string) error {
	return c.SendAction("send_private_msg", map[string]any{
		"user_id": userID,
		"message": text,
	})
}

// SendGroup sends text to a group chat.
func (c *Client) SendGroup(groupID int64, text string) error {
	return c.SendAction("send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  text,
	})
}

func (c *Client) send(envelope actionEnvelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return errors.New("protocol: not connected")
	}
	return c.conn.WriteJSON(envelope)
}

func (c *Client) start(conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	c.connected.Store(true)
	c.startHeartbeat()
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return
		}
		c.dispatchFrame(payload)
	}
}

// dispatchFrame classifies one inbound frame. Parse failures are contained
// per frame: a malformed frame is logged and skipped, the loop continues.
func (c *Client) dispatchFrame(payload []byte) {
	log := zap.S().Named("protocol")

	if c.handler == nil {
		return
	}

	var base baseFrame
	if err := json.Unmarshal(payload, &base); err != nil {
		log.Debugf("malformed frame dropped: %v", err)
		return
	}

	// liveness probe acknowledgements never surface as events
	if len(base.Echo) != 0 {
		var echo string
		if err := json.Unmarshal(base.Echo, &echo); err == nil && echo == heartbeatEcho {
			log.Debugf("heartbeat ack received")
			return
		}
		return
	}

	if base.PostType == "" {
		return
	}

	switch base.PostType {
	case "message":
		var evt messageEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Debugf("message event dropped: %v", err)
			return
		}
		if evt.MessageType != "private" && evt.MessageType != "group" {
			return
		}
		nickname := evt.Sender.Card
		if nickname == "" {
			nickname = evt.Sender.Nickname
		}
		userID := evt.Sender.UserID
		if userID == 0 {
			userID = evt.UserID
		}
		c.handler.OnMessage(&Message{
			Type:    evt.MessageType,
			Time:    evt.Time,
			GroupID: evt.GroupID,
			Sender:  Sender{UserID: userID, Nickname: nickname},
			Text:    flattenMessage(&evt),
		})
	case "notice":
		var evt noticeEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Debugf("notice event dropped: %v", err)
			return
		}
		c.handler.OnNotice(&Notice{
			Type:       evt.NoticeType,
			SubType:    evt.SubType,
			Time:       evt.Time,
			GroupID:    evt.GroupID,
			UserID:     evt.UserID,
			OperatorID: evt.OperatorID,
		})
	case "request":
		var evt requestEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Debugf("request event dropped: %v", err)
			return
		}
		c.handler.OnRequest(&Request{
			Type:    evt.RequestType,
			SubType: evt.SubType,
			Time:    evt.Time,
			GroupID: evt.GroupID,
			UserID:  evt.UserID,
			Flag:    evt.Flag,
			Comment: evt.Comment,
		})
	case "meta_event":
		var evt metaEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Debugf("meta event dropped: %v", err)
			return
		}
		c.handler.OnMeta(&Meta{
			Type:    evt.MetaEventType,
			SubType: evt.SubType,
			Time:    evt.Time,
		})
	default:
		log.Debugf("unknown post_type %q dropped", base.PostType)
	}
}

func (c *Client) handleDisconnect(err error) {
	log := zap.S().Named("protocol")

	c.connected.Store(false)
	c.stopHeartbeat()
	if c.handler != nil {
		c.handler.OnDisconnect(err)
	}

	if c.closing.Load() {
		return
	}

	log.Warnf("connection lost: %v", err)
	if !c.reconnect.Enabled {
		return
	}

	// schedule exactly one attempt; a failed attempt is not retried until
	// the next disconnect event
	log.Infof("scheduling reconnect in %s", c.reconnect.Delay)
	time.AfterFunc(c.reconnect.Delay, c.tryReconnect)
}

// tryReconnect is the one-shot delayed attempt. It no-ops if the client is
// already connected again or is shutting down.
func (c *Client) tryReconnect() {
	log := zap.S().Named("protocol")

	if c.closing.Load() || c.connected.Load() {
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.endpoint, nil)
	if err != nil {
		log.Warnf("reconnect attempt failed: %v", err)
		return
	}
	c.start(conn)
	log.Infof("reconnected to %s", c.endpoint)
}

func (c *Client) startHeartbeat() {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()

	if c.hbStop != nil {
		close(c.hbStop)
	}
	stop := make(chan struct{})
	c.hbStop = stop

	go func() {
		log := zap.S().Named("protocol")
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.connected.Load() {
					continue
				}
				err := c.send(actionEnvelope{
					Action: "get_status",
					Echo:   heartbeatEcho,
				})
				if err != nil {
					log.Debugf("heartbeat send failed: %v", err)
				}
			}
		}
	}()
}

func (c *Client) stopHeartbeat() {
	c.hbMu.Lock()
	defer c.hbMu.Unlock()
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
}
