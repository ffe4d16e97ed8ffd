package models

// Role identifies the author of a chat message.

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn of the conversation forwarded to the replica.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
