package state

// State identifies a conversation step waiting for the next free-text message.
type State string

const (
	// StateIdle indicates there is no pending step for the chat.
	StateIdle State = "idle"
)

// Manager keeps at most one pending step per chat.
type Manager interface {
	// Arm sets the pending step, replacing any previous one.
	Arm(chatID int64, st State)
	// Take consumes the pending step. ok is false when the chat is idle.
	Take(chatID int64) (st State, ok bool)
	// Pending returns the pending step without consuming it.
	Pending(chatID int64) State
}
