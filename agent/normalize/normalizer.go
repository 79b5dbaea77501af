// Package normalize turns raw remote agent results into canonical messages.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/tanpawarit/Chative-Agent-Routing/agent/contract"
	"github.com/tanpawarit/Chative-Agent-Routing/agent/message"
	"github.com/tanpawarit/Chative-Agent-Routing/pkg/serialize"
)

const (
	ToolImage = "image"
	ToolFiles = "files"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chative-agent-routing/messages"))

// ToolHandler writes the human readable summary of a known tool's arguments.
type ToolHandler func(args gjson.Result) string

type Option func(*Normalizer)

func WithHandler(name string, h ToolHandler) Option {
	return func(n *Normalizer) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && h != nil {
			n.handlers[name] = h
		}
	}
}

type Normalizer struct {
	handlers map[string]ToolHandler
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		handlers: map[string]ToolHandler{
			ToolImage: summarizeImages,
			ToolFiles: summarizeFiles,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Normalize converts res into canonical messages in arrival order. scope seeds the
// generated ids: normalizing the same result under the same scope yields the same
// messages. It never panics and returns nil only when there is nothing to append.
func (n *Normalizer) Normalize(scope string, res contract.ExecutionResult) []message.Message {
	raws := res.Messages
	if len(raws) == 0 {
		if strings.TrimSpace(res.Content) == "" {
			return nil
		}
		raws = []contract.RemoteMessage{{Role: string(message.RoleAI), Content: res.Content}}
	}

	out := make([]message.Message, 0, len(raws))
	for i, raw := range raws {
		out = append(out, n.one(scope, i, raw))
	}
	return out
}

func (n *Normalizer) one(scope string, pos int, raw contract.RemoteMessage) (msg message.Message) {
	id := stableID(scope, pos, raw)
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("scope", scope).
				Int("position", pos).
				Str("role", raw.Role).
				Interface("panic", r).
				Msg("normalize: message degraded to text")
			msg = message.AI(id, display(raw.Content))
		}
	}()

	switch strings.ToLower(strings.TrimSpace(raw.Role)) {
	case "tool", "function":
		return n.tool(id, raw)
	case "human", "user":
		return message.Human(id, display(raw.Content))
	case "system":
		return message.System(id, display(raw.Content))
	default:
		return message.AI(id, display(raw.Content), pendingCalls(raw.Metadata)...)
	}
}

func (n *Normalizer) tool(id string, raw contract.RemoteMessage) message.Message {
	name := toolName(raw)
	handler, ok := n.handlers[name]
	if !ok {
		log.Debug().Str("tool", name).Str("message_id", id).Msg("normalize: unsupported tool passed through as text")
		return message.AI(id, display(raw.Content))
	}

	args := serialize.SafeSerialize(toolPayload(raw))
	callID := strings.TrimSpace(raw.ToolCallID)
	if callID == "" {
		callID = "call_" + id
	}

	envelope := message.ToolCall{
		ID:   callID,
		Type: message.ToolCallTypeFunction,
		Function: message.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
	return message.Tool(id, name, callID, handler(gjson.Parse(args)), json.RawMessage(args), envelope)
}

func toolName(raw contract.RemoteMessage) string {
	for _, key := range []string{"function", "name", "tool"} {
		if s, ok := raw.Metadata[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.ToLower(strings.TrimSpace(s))
		}
	}
	if strings.TrimSpace(raw.Name) != "" {
		return strings.ToLower(strings.TrimSpace(raw.Name))
	}
	if body := serialize.RepairAndNormalize(raw.Content); gjson.Valid(body) {
		for _, path := range []string{"function", "name", "tool"} {
			if v := gjson.Get(body, path); v.Type == gjson.String && v.Str != "" {
				return strings.ToLower(strings.TrimSpace(v.Str))
			}
		}
	}
	return ""
}

// toolPayload prefers structured metadata over the message body. Payloads that
// arrive as JSON text are kept as raw JSON so object key order survives.
func toolPayload(raw contract.RemoteMessage) any {
	for _, key := range []string{"data", "arguments"} {
		v, ok := raw.Metadata[key]
		if !ok || v == nil {
			continue
		}
		if s, isText := v.(string); isText {
			if body := serialize.RepairAndNormalize(s); gjson.Valid(body) {
				return json.RawMessage(body)
			}
		}
		return v
	}

	body := serialize.RepairAndNormalize(raw.Content)
	if !gjson.Valid(body) {
		return raw.Content
	}
	for _, path := range []string{"data", "arguments"} {
		if v := gjson.Get(body, path); v.Exists() {
			return json.RawMessage(v.Raw)
		}
	}
	return json.RawMessage(body)
}

// pendingCalls reads the OpenAI style tool_calls list an AI message may carry.
func pendingCalls(meta map[string]any) []message.ToolCall {
	v, ok := meta["tool_calls"]
	if !ok || v == nil {
		return nil
	}
	list := gjson.Parse(serialize.SafeSerialize(v))
	if !list.IsArray() {
		return nil
	}

	var calls []message.ToolCall
	list.ForEach(func(_, c gjson.Result) bool {
		args := c.Get("function.arguments")
		arguments := args.Raw
		if args.Type == gjson.String {
			arguments = args.Str
		}
		calls = append(calls, message.ToolCall{
			ID:   c.Get("id").String(),
			Type: message.ToolCallTypeFunction,
			Function: message.FunctionCall{
				Name:      c.Get("function.name").String(),
				Arguments: arguments,
			},
		})
		return true
	})
	return calls
}

func display(s string) string {
	return strings.ToValidUTF8(serialize.DisplayText(s), "�")
}

func stableID(scope string, pos int, raw contract.RemoteMessage) string {
	if id := strings.TrimSpace(raw.ID); id != "" {
		return id
	}
	seed := strings.Join([]string{scope, strconv.Itoa(pos), raw.Role, raw.Name, raw.Content}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(seed)).String()
}

func summarizeImages(args gjson.Result) string {
	n := 1
	if args.IsArray() {
		n = len(args.Array())
	}
	if n == 1 {
		return "Generated 1 image"
	}
	return fmt.Sprintf("Generated %d images", n)
}

func summarizeFiles(args gjson.Result) string {
	if !args.IsArray() {
		return "Shared file " + fileLabel(args)
	}
	items := args.Array()
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, fileLabel(item))
	}
	return fmt.Sprintf("Shared %d files: %s", len(items), strings.Join(names, ", "))
}

func fileLabel(f gjson.Result) string {
	name := f.Get("name").String()
	if name == "" {
		name = f.Get("path").String()
	}
	if name == "" {
		name = "unnamed"
	}
	if date := f.Get("date").String(); date != "" {
		return fmt.Sprintf("%s (%s)", name, date)
	}
	return name
}
