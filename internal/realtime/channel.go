package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrClosed is returned when sending on a channel that was closed or dropped.
var ErrClosed = errors.New("realtime channel closed")

// InboundKind classifies messages delivered to the session.
type InboundKind int

const (
	InboundLeaderboard InboundKind = iota + 1
	InboundForceSubmit
	InboundDisconnected
)

// Inbound is a server message, or a connection-loss notice, for the session.
type Inbound struct {
	Kind        InboundKind
	Leaderboard []model.LeaderboardEntry
	Err         error
}

// Channel is the candidate's single connection to an exam room.
type Channel struct {
	conn   *websocket.Conn
	examID string
	who    model.Identity
	log    zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	joined  bool
	closed  bool
	dropped bool

	inbound chan Inbound
	done    chan struct{}
}

// RoomURL builds the room endpoint for an exam under the backend ws base URL.
func RoomURL(base, examID string, who model.Identity) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/exams/" + url.PathEscape(examID) + "/room")
	if err != nil {
		return "", fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("userId", who.UserID)
	q.Set("name", who.Name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the connection for one exam session. The caller must Close it.
func Dial(ctx context.Context, base, examID string, who model.Identity, log zerolog.Logger) (*Channel, error) {
	target, err := RoomURL(base, examID, who)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime channel: %w", err)
	}

	c := &Channel{
		conn:    conn,
		examID:  examID,
		who:     who,
		log:     log.With().Str("component", "realtime_channel").Str("exam_id", examID).Str("user_id", who.UserID).Logger(),
		inbound: make(chan Inbound, 16),
		done:    make(chan struct{}),
	}
	keepReadAlive(conn)
	go c.readPump()

	c.log.Info().Msg("Realtime channel connected")
	return c, nil
}

// Inbound delivers server messages. It is closed when the connection ends.
func (c *Channel) Inbound() <-chan Inbound {
	return c.inbound
}

// Join announces the candidate in the exam room.
func (c *Channel) Join() error {
	err := c.send(KindJoinRoom, JoinRoomPayload{ExamID: c.examID, UserID: c.who.UserID, Name: c.who.Name})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()
	return nil
}

// Leave announces that the candidate left the room.
func (c *Channel) Leave() error {
	c.mu.Lock()
	joined := c.joined
	c.joined = false
	c.mu.Unlock()
	if !joined {
		return nil
	}
	return c.send(KindLeaveRoom, LeaveRoomPayload{ExamID: c.examID, UserID: c.who.UserID})
}

// SendProgress publishes the running correct-answer count.
func (c *Channel) SendProgress(correct, tabSwitches int) error {
	return c.send(KindProgressUpdate, ProgressUpdatePayload{
		ExamID:         c.examID,
		UserID:         c.who.UserID,
		Name:           c.who.Name,
		CorrectAnswers: correct,
		TabSwitchCount: tabSwitches,
	})
}

// SendTabSwitch reports a focus loss with the current count.
func (c *Channel) SendTabSwitch(count int) error {
	return c.send(KindTabSwitch, TabSwitchPayload{UserID: c.who.UserID, ExamID: c.examID, Count: count})
}

// SendAutoSubmitted reports that the session submitted itself after a breach.
func (c *Channel) SendAutoSubmitted() error {
	return c.send(KindAutoSubmitted, AutoSubmittedPayload{UserID: c.who.UserID, ExamID: c.examID, IsAutoSubmitted: true})
}

// Close leaves the room if still joined and disconnects. Idempotent.
func (c *Channel) Close() error {
	if err := c.Leave(); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn().Err(err).Msg("Leave room on close failed")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.log.Info().Msg("Realtime channel closed")
	return c.conn.Close()
}

func (c *Channel) send(kind Kind, payload interface{}) error {
	c.mu.Lock()
	unusable := c.closed || c.dropped
	c.mu.Unlock()
	if unusable {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeTyped(c.conn, kind, payload); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

func (c *Channel) readPump() {
	defer close(c.inbound)

	for {
		var env Envelope
		if err := readEnvelope(c.conn, &env); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.dropped = true
			c.mu.Unlock()
			if closed {
				return
			}
			// The server or network dropped us; no reconnect is attempted.
			c.log.Warn().Err(err).Msg("Realtime channel dropped")
			c.deliver(Inbound{Kind: InboundDisconnected, Err: err})
			return
		}

		switch env.Event {
		case KindLeaderboard:
			var entries LeaderboardPayload
			if err := env.Decode(&entries); err != nil {
				c.log.Warn().Err(err).Msg("Discarding malformed leaderboard")
				continue
			}
			c.deliver(Inbound{Kind: InboundLeaderboard, Leaderboard: entries})
		case KindForceSubmit:
			c.log.Warn().Msg("Server forced submission")
			c.deliver(Inbound{Kind: InboundForceSubmit})
		case KindError:
			var p ErrorPayload
			_ = env.Decode(&p)
			c.log.Warn().Str("error", p.Error).Msg("Server reported error")
		default:
			c.log.Debug().Str("event", string(env.Event)).Msg("Ignoring unknown event")
		}
	}
}

func (c *Channel) deliver(in Inbound) {
	select {
	case c.inbound <- in:
	case <-c.done:
	}
}
