package model

// ProctorEventKind enumerates the cheating signals recorded server-side.
type ProctorEventKind string

const (
	ProctorEventTabSwitch     ProctorEventKind = "TAB_SWITCH"
	ProctorEventAutoSubmitted ProctorEventKind = "AUTO_SUBMITTED"
	ProctorEventForceSubmit   ProctorEventKind = "FORCE_SUBMIT"
)

// ProctorEvent is a single cheating signal queued for persistence.
type ProctorEvent struct {
	ExamID    string           `json:"exam_id"`
	UserID    string           `json:"user_id"`
	Kind      ProctorEventKind `json:"kind"`
	Count     int              `json:"count"`
	Timestamp int64            `json:"timestamp"`
}
