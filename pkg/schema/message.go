package schema

// Role identifies the author of a transcript message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ParseRole maps a serialized role string to a Role, defaulting to user
// for unrecognized values so old transcripts always load.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return Role(s)
	default:
		return RoleUser
	}
}

// Message is a single role-tagged exchange in a case transcript.
// Name carries the originating actor role, if any.
type Message struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Transcript is the append-only ordered log of messages visible to every
// actor invocation. It is not safe for concurrent use; a single case is
// processed by a single worker at a time.
type Transcript struct {
	messages []Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(msg Message) {
	t.messages = append(t.messages, msg)
}

// AppendSystem appends a system message with the given content.
func (t *Transcript) AppendSystem(content string) {
	t.Append(Message{Role: RoleSystem, Content: content})
}

// Messages returns the ordered messages. The returned slice is shared;
// callers must not mutate it.
func (t *Transcript) Messages() []Message {
	return t.messages
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Clone returns a deep-enough copy for snapshotting: the message slice is
// copied, message contents are immutable by convention.
func (t *Transcript) Clone() *Transcript {
	cp := make([]Message, len(t.messages))
	copy(cp, t.messages)
	return &Transcript{messages: cp}
}
