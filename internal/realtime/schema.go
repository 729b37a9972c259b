// Package realtime implements the exam room protocol: the candidate-side
// channel and the server-side room hub.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Kind names a protocol message on the wire.
type Kind string

// ─── Candidate → Server ─────────────────────────────────────────────

const (
	KindJoinRoom       Kind = "join-exam-room"
	KindLeaveRoom      Kind = "leave-exam-room"
	KindProgressUpdate Kind = "progress-update"
	KindTabSwitch      Kind = "tab-switch"
	KindAutoSubmitted  Kind = "exam-auto-submitted"
)

// ─── Server → Candidate ─────────────────────────────────────────────

const (
	KindLeaderboard Kind = "leaderboard-update"
	KindForceSubmit Kind = "force-submit"
	KindError       Kind = "error"
)

// Envelope wraps every message. Data is decoded once Event is known.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRoomPayload struct {
	ExamID string `json:"examId"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type LeaveRoomPayload struct {
	ExamID string `json:"examId"`
	UserID string `json:"userId"`
}

type ProgressUpdatePayload struct {
	ExamID         string `json:"examId"`
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	CorrectAnswers int    `json:"correctAnswers"`
	TabSwitchCount int    `json:"tabSwitchCount"`
}

type TabSwitchPayload struct {
	UserID string `json:"userId"`
	ExamID string `json:"examId"`
	Count  int    `json:"count"`
}

type AutoSubmittedPayload struct {
	UserID          string `json:"userId"`
	ExamID          string `json:"examId"`
	IsAutoSubmitted bool   `json:"isAutoSubmitted"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// LeaderboardPayload is the full standings of a room, unsorted.
type LeaderboardPayload []model.LeaderboardEntry

// Encode builds a wire message. A nil payload produces an envelope without data.
func Encode(kind Kind, payload interface{}) ([]byte, error) {
	env := Envelope{Event: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return nil
}
