package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// EventSink receives room activity worth recording outside the hub.
type EventSink interface {
	TabSwitch(ctx context.Context, examID, userID string, count int)
	AutoSubmitted(ctx context.Context, examID, userID string)
	ForceSubmitted(ctx context.Context, examID, userID string, count int)
	Leaderboard(ctx context.Context, examID string, entries []model.LeaderboardEntry)
}

// HubConfig tunes the room hub.
type HubConfig struct {
	// TabSwitchLimit is the reported count at which the server forces submission.
	TabSwitchLimit int
	SendBuffer     int
}

// Hub keeps one room per exam and fans leaderboard snapshots out to its members.
type Hub struct {
	cfg  HubConfig
	sink EventSink
	log  zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	id      string
	clients map[*client]struct{}
	// board preserves join order; the candidate side sorts for display.
	// Entries outlive their connections so finished candidates stay ranked.
	// The whole room is dropped when its last member leaves.
	board  []model.LeaderboardEntry
	index  map[string]int
	forced map[string]bool
	tabs   map[string]int
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	examID string
	who    model.Identity
	log    zerolog.Logger

	joined bool
}

// NewHub creates an empty Hub.
func NewHub(cfg HubConfig, sink EventSink, log zerolog.Logger) *Hub {
	if cfg.TabSwitchLimit < 1 {
		cfg.TabSwitchLimit = 3
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 32
	}
	return &Hub{
		cfg:   cfg,
		sink:  sink,
		log:   log.With().Str("component", "room_hub").Logger(),
		rooms: make(map[string]*room),
	}
}

// Serve runs one candidate connection until it closes. The connection is
// bound to examID; messages for other exams are rejected.
func (h *Hub) Serve(conn *websocket.Conn, examID string, who model.Identity) {
	c := &client{
		id:     uuid.NewString()[:8],
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		examID: examID,
		who:    who,
	}
	c.log = h.log.With().
		Str("conn_id", c.id).
		Str("exam_id", examID).
		Str("user_id", who.UserID).
		Logger()

	c.log.Info().Msg("Candidate connected")

	done := make(chan struct{})
	go c.writePump(done)

	c.readPump()

	h.leave(c)
	close(done)
	c.log.Info().Msg("Candidate disconnected")
}

// RoomSize returns the number of connected members of a room.
func (h *Hub) RoomSize(examID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[examID]; ok {
		return len(r.clients)
	}
	return 0
}

// Stats returns the number of open rooms and connected candidates.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		clients += len(r.clients)
	}
	return len(h.rooms), clients
}

// Snapshot returns a copy of a room's leaderboard.
func (h *Hub) Snapshot(examID string) []model.LeaderboardEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[examID]
	if !ok {
		return nil
	}
	return append([]model.LeaderboardEntry(nil), r.board...)
}

func (c *client) readPump() {
	keepReadAlive(c.conn)
	for {
		var env Envelope
		if err := readEnvelope(c.conn, &env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}
		c.hub.dispatch(c, env)
	}
}

func (c *client) writePump(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			if err := writeMessage(c.conn, msg); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) dispatch(c *client, env Envelope) {
	ctx := context.Background()

	switch env.Event {
	case KindJoinRoom:
		var p JoinRoomPayload
		if err := env.Decode(&p); err != nil || p.ExamID != c.examID || p.UserID != c.who.UserID {
			c.reject("invalid join-exam-room payload")
			return
		}
		if p.Name != "" {
			c.who.Name = p.Name
		}
		h.join(ctx, c)

	case KindLeaveRoom:
		h.leave(c)

	case KindProgressUpdate:
		var p ProgressUpdatePayload
		if err := env.Decode(&p); err != nil || p.ExamID != c.examID || p.UserID != c.who.UserID {
			c.reject("invalid progress-update payload")
			return
		}
		h.progress(ctx, c, p)

	case KindTabSwitch:
		var p TabSwitchPayload
		if err := env.Decode(&p); err != nil || p.ExamID != c.examID || p.UserID != c.who.UserID {
			c.reject("invalid tab-switch payload")
			return
		}
		h.tabSwitch(ctx, c, p.Count)

	case KindAutoSubmitted:
		var p AutoSubmittedPayload
		if err := env.Decode(&p); err != nil || p.ExamID != c.examID || !p.IsAutoSubmitted {
			c.reject("invalid exam-auto-submitted payload")
			return
		}
		c.log.Warn().Msg("Candidate auto-submitted")
		h.sink.AutoSubmitted(ctx, c.examID, c.who.UserID)

	default:
		c.log.Warn().Str("event", string(env.Event)).Msg("Unknown event")
		c.reject("unknown event: " + string(env.Event))
	}
}

func (c *client) reject(msg string) {
	data, err := Encode(KindError, ErrorPayload{Error: msg})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue never blocks the hub; a member that cannot keep up is disconnected.
func (c *client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("Send buffer full, dropping connection")
		c.conn.Close()
	}
}

func (h *Hub) join(ctx context.Context, c *client) {
	h.mu.Lock()
	r, ok := h.rooms[c.examID]
	if !ok {
		r = &room{
			id:      c.examID,
			clients: make(map[*client]struct{}),
			index:   make(map[string]int),
			forced:  make(map[string]bool),
			tabs:    make(map[string]int),
		}
		h.rooms[c.examID] = r
	}
	// A second join on a joined connection announces a new attempt (retake).
	rejoin := c.joined
	r.clients[c] = struct{}{}
	c.joined = true
	if i, ok := r.index[c.who.UserID]; !ok {
		r.index[c.who.UserID] = len(r.board)
		r.board = append(r.board, model.LeaderboardEntry{UserID: c.who.UserID, Name: c.who.Name})
	} else {
		r.board[i].Name = c.who.Name
	}
	if rejoin {
		r.resetAttempt(c.who.UserID)
	}
	snapshot := h.broadcastLocked(r)
	h.mu.Unlock()

	if rejoin {
		c.log.Info().Msg("New attempt in exam room")
	} else {
		c.log.Info().Msg("Joined exam room")
	}
	h.sink.Leaderboard(ctx, c.examID, snapshot)
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.joined {
		return
	}
	c.joined = false
	r, ok := h.rooms[c.examID]
	if !ok {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 {
		delete(h.rooms, c.examID)
		h.log.Debug().Str("exam_id", c.examID).Msg("Room closed")
	}
}

func (h *Hub) progress(ctx context.Context, c *client, p ProgressUpdatePayload) {
	h.mu.Lock()
	r, ok := h.rooms[c.examID]
	if !ok || !c.joined {
		h.mu.Unlock()
		c.reject("join the exam room first")
		return
	}
	i := r.index[c.who.UserID]
	r.board[i].CorrectAnswers = p.CorrectAnswers
	if p.Name != "" {
		r.board[i].Name = p.Name
	}
	snapshot := h.broadcastLocked(r)
	h.mu.Unlock()

	h.sink.Leaderboard(ctx, c.examID, snapshot)
}

func (h *Hub) tabSwitch(ctx context.Context, c *client, count int) {
	h.mu.Lock()
	r, ok := h.rooms[c.examID]
	if !ok || !c.joined {
		h.mu.Unlock()
		c.reject("join the exam room first")
		return
	}
	// Counts only grow within an attempt, so a lower one means the
	// candidate retook the exam without re-joining.
	if count < r.tabs[c.who.UserID] {
		r.resetAttempt(c.who.UserID)
	}
	r.tabs[c.who.UserID] = count

	force := count >= h.cfg.TabSwitchLimit && !r.forced[c.who.UserID]
	if force {
		r.forced[c.who.UserID] = true
		if data, err := Encode(KindForceSubmit, nil); err == nil {
			for member := range r.clients {
				if member.who.UserID == c.who.UserID {
					member.enqueue(data)
				}
			}
		}
	}
	h.mu.Unlock()

	c.log.Warn().Int("count", count).Msg("Tab switch reported")
	h.sink.TabSwitch(ctx, c.examID, c.who.UserID, count)
	if force {
		c.log.Warn().Int("count", count).Msg("Forcing submission")
		h.sink.ForceSubmitted(ctx, c.examID, c.who.UserID, count)
	}
}

// resetAttempt forgets a candidate's per-attempt state. h.mu must be held.
func (r *room) resetAttempt(userID string) {
	delete(r.tabs, userID)
	delete(r.forced, userID)
	if i, ok := r.index[userID]; ok {
		r.board[i].CorrectAnswers = 0
	}
}

// broadcastLocked sends the room's standings to every member and returns
// the snapshot. h.mu must be held.
func (h *Hub) broadcastLocked(r *room) []model.LeaderboardEntry {
	snapshot := append([]model.LeaderboardEntry(nil), r.board...)
	data, err := Encode(KindLeaderboard, LeaderboardPayload(snapshot))
	if err != nil {
		h.log.Error().Err(err).Msg("Encode leaderboard failed")
		return snapshot
	}
	for member := range r.clients {
		member.enqueue(data)
	}
	return snapshot
}
