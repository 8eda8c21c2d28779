package retellclient

import "strings"

// Role is the normalized author of a chat turn.
type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseRole maps an upstream role label onto Role. Older API versions label
// the bot "agent", newer ones "assistant"; both become RoleAgent.
func ParseRole(label string) Role {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "agent", "assistant":
		return RoleAgent
	case "user":
		return RoleUser
	default:
		return RoleUnknown
	}
}

// Turn is one message of a completion.
type Turn struct {
	Role    Role
	Label   string
	Content string
}

// SelectReply returns the first agent turn with content.
func SelectReply(turns []Turn) (Turn, bool) {
	for _, t := range turns {
		if t.Role == RoleAgent && strings.TrimSpace(t.Content) != "" {
			return t, true
		}
	}
	return Turn{}, false
}

type createChatRequest struct {
	AgentID string `json:"agent_id"`
}

type createChatResponse struct {
	ChatID     string `json:"chat_id"`
	AgentID    string `json:"agent_id,omitempty"`
	ChatStatus string `json:"chat_status,omitempty"`
}

type completionRequest struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
}

// completionResponse keeps Messages as a pointer so a missing field can be told
// apart from an empty list.
type completionResponse struct {
	Messages *[]wireMessage `json:"messages"`
}

type wireMessage struct {
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

func (m wireMessage) turn() Turn {
	return Turn{Role: ParseRole(m.Role), Label: m.Role, Content: m.Content}
}
