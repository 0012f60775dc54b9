package domain

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks text typed or spoken by the user.
	RoleUser Role = "user"
	// RoleAgent marks text produced by the remote agent.
	RoleAgent Role = "agent"
)

// Message is one transcript entry. Messages live only for one chat session.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
