package model

// Conversation is the ordered, append-only history of one research run.
// It is not safe for concurrent use; a run owns its conversation.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation with the given messages.
func NewConversation(messages ...Message) *Conversation {
	c := &Conversation{}
	c.Append(messages...)
	return c
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(messages ...Message) {
	c.messages = append(c.messages, messages...)
}

// Messages returns a copy of the history in production order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the most recent message, or false when empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}
