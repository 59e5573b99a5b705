package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionGoTo     Action = "goto"
	ActionFlag     Action = "flag"
	ActionPause    Action = "pause"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is one client message. Only the fields used by Action are read.
type Request struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id,omitempty"`
	Value      string `json:"value,omitempty"`
	Index      *int   `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError   Event = "error"
	EventSession Event = "session"
	EventGraded  Event = "graded"
	EventPong    Event = "pong"
)

// Envelope carries every server message.
type Envelope struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
