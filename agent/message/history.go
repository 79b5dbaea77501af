package message

import "github.com/tanpawarit/Chative-Agent-Routing/agent/contract"

// History is the ordered conversation. Append never touches the receiver's backing
// array, so a history held by a caller is never changed by a later step.
type History []Message

func (h History) Append(msgs ...Message) History {
	out := make(History, len(h), len(h)+len(msgs))
	copy(out, h)
	return append(out, msgs...)
}

func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

// LastHuman returns the content of the most recent human message.
func (h History) LastHuman() string {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleHuman {
			return h[i].Content
		}
	}
	return ""
}

func (h History) Plain() []contract.PlainMessage {
	out := make([]contract.PlainMessage, 0, len(h))
	for _, m := range h {
		out = append(out, m.Plain())
	}
	return out
}

// Since returns the messages appended after the first n.
func (h History) Since(n int) []Message {
	if n < 0 {
		n = 0
	}
	if n >= len(h) {
		return nil
	}
	return append([]Message(nil), h[n:]...)
}
