package message

// Wire is the shape sent to UI and transport layers.
type Wire struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"`
	Name      string     `json:"name,omitempty"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

func (m Message) ToWire() Wire {
	return Wire{
		ID:        m.ID,
		Role:      string(m.Role),
		Name:      m.Name,
		Content:   m.Content,
		ToolCalls: cloneCalls(m.ToolCalls),
	}
}

func ToWire(msgs []Message) []Wire {
	out := make([]Wire, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToWire())
	}
	return out
}
