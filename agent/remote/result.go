package remote

import (
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/pkg/serialize"
)

func toExecutionResult(sessionID string, result a2a.SendMessageResult) contract.ExecutionResult {
	res := contract.ExecutionResult{SessionID: sessionID, Kind: contract.ResultText}

	switch r := result.(type) {
	case *a2a.Message:
		res.Messages = partsToMessages(r.Parts)
		res.Status = true
		res.Final = true
	case *a2a.Task:
		var parts []a2a.Part
		if r.Status.Message != nil {
			parts = append(parts, r.Status.Message.Parts...)
		}
		for _, art := range r.Artifacts {
			parts = append(parts, art.Parts...)
		}
		res.Messages = partsToMessages(parts)

		switch r.Status.State {
		case a2a.TaskStateCompleted:
			res.Status, res.Final = true, true
		case a2a.TaskStateInputRequired:
			res.Status = true
		default:
			// failed, rejected, canceled, or a task still running that nobody will poll
			res.Status = false
			res.Final = r.Status.State.Terminal()
			if text := textOf(res.Messages); text != "" {
				res.Content = text
			} else {
				res.Content = "task ended in state " + string(r.Status.State)
			}
			res.Kind = contract.ResultError
			return res
		}
	default:
		res.Kind = contract.ResultError
		res.Content = "empty a2a response"
		return res
	}

	res.Content = textOf(res.Messages)
	for _, m := range res.Messages {
		if m.Role == "tool" {
			res.Kind = contract.ResultTool
			break
		}
	}
	return res
}

// partsToMessages keeps part order. Consecutive inline images collapse into one
// image tool message.
func partsToMessages(parts []a2a.Part) []contract.RemoteMessage {
	out := make([]contract.RemoteMessage, 0, len(parts))
	var images []any

	flush := func() {
		if len(images) == 0 {
			return
		}
		out = append(out, contract.RemoteMessage{
			Role:     "tool",
			Name:     "image",
			Metadata: map[string]any{"function": "image", "data": images},
		})
		images = nil
	}

	for _, p := range parts {
		switch v := p.(type) {
		case a2a.TextPart:
			flush()
			out = append(out, textMessage(v.Text))
		case *a2a.TextPart:
			flush()
			out = append(out, textMessage(v.Text))
		case a2a.DataPart:
			flush()
			out = append(out, dataMessage(v.Data))
		case *a2a.DataPart:
			flush()
			out = append(out, dataMessage(v.Data))
		case a2a.FilePart:
			if b, ok := imageBytes(v); ok {
				images = append(images, b)
				continue
			}
			flush()
			out = append(out, fileMessage(v))
		case *a2a.FilePart:
			if b, ok := imageBytes(*v); ok {
				images = append(images, b)
				continue
			}
			flush()
			out = append(out, fileMessage(*v))
		}
	}
	flush()
	return out
}

func textMessage(text string) contract.RemoteMessage {
	return contract.RemoteMessage{Role: "ai", Content: text}
}

func dataMessage(data map[string]any) contract.RemoteMessage {
	content := serialize.SafeSerialize(data)
	for _, key := range []string{"function", "name", "tool"} {
		if name, ok := data[key].(string); ok && name != "" {
			return contract.RemoteMessage{Role: "tool", Name: name, Content: content, Metadata: data}
		}
	}
	return contract.RemoteMessage{Role: "ai", Content: content}
}

func imageBytes(p a2a.FilePart) (string, bool) {
	switch f := p.File.(type) {
	case a2a.FileBytes:
		return f.Bytes, strings.HasPrefix(f.MimeType, "image/")
	case *a2a.FileBytes:
		return f.Bytes, strings.HasPrefix(f.MimeType, "image/")
	}
	return "", false
}

func fileMessage(p a2a.FilePart) contract.RemoteMessage {
	var desc contract.FileDescriptor
	switch f := p.File.(type) {
	case a2a.FileURI:
		desc.Name, desc.Path = f.Name, f.URI
	case *a2a.FileURI:
		desc.Name, desc.Path = f.Name, f.URI
	case a2a.FileBytes:
		desc.Name = f.Name
	case *a2a.FileBytes:
		desc.Name = f.Name
	}
	if date, ok := p.Metadata["date"].(string); ok {
		desc.Date = date
	}
	return contract.RemoteMessage{
		Role:     "tool",
		Name:     "files",
		Metadata: map[string]any{"function": "files", "data": desc},
	}
}

func textOf(msgs []contract.RemoteMessage) string {
	var texts []string
	for _, m := range msgs {
		if m.Role == "ai" && strings.TrimSpace(m.Content) != "" {
			texts = append(texts, m.Content)
		}
	}
	return strings.Join(texts, "\n")
}
