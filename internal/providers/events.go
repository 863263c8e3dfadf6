package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

type rawJSON = json.RawMessage

// Event is one item of an agent response. The concrete types below form a
// closed set; anything else decodes to UnknownEvent.
type Event interface {
	Kind() string
}

type AssistantMessage struct {
	ID   string
	Text string
}

type ReasoningMessage struct {
	Reasoning string
}

type ToolCallMessage struct {
	Name      string
	Arguments string
}

type ToolReturnMessage struct {
	Status string
	Return string
}

type StopReason struct {
	Reason string
}

type UsageStatistics struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	StepCount        int
}

// UnknownEvent carries any message type this client does not model.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (AssistantMessage) Kind() string  { return "assistant_message" }
func (ReasoningMessage) Kind() string  { return "reasoning_message" }
func (ToolCallMessage) Kind() string   { return "tool_call_message" }
func (ToolReturnMessage) Kind() string { return "tool_return_message" }
func (StopReason) Kind() string        { return "stop_reason" }
func (UsageStatistics) Kind() string   { return "usage_statistics" }
func (e UnknownEvent) Kind() string    { return e.Type }

type eventEnvelope struct {
	MessageType string          `json:"message_type"`
	ID          string          `json:"id"`
	Content     json.RawMessage `json:"content"`
	Reasoning   string          `json:"reasoning"`
	ToolCall    *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"tool_call"`
	ToolReturn       string `json:"tool_return"`
	Status           string `json:"status"`
	StopReason       string `json:"stop_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StepCount        int    `json:"step_count"`
}

// ParseEvent decodes one response item. It only fails on malformed JSON.
func ParseEvent(raw []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("letta: decode event: %w", err)
	}

	switch env.MessageType {
	case "assistant_message":
		return AssistantMessage{ID: env.ID, Text: assistantContent(env.Content)}, nil
	case "reasoning_message":
		return ReasoningMessage{Reasoning: env.Reasoning}, nil
	case "tool_call_message":
		ev := ToolCallMessage{}
		if env.ToolCall != nil {
			ev.Name = env.ToolCall.Name
			ev.Arguments = env.ToolCall.Arguments
		}
		return ev, nil
	case "tool_return_message":
		return ToolReturnMessage{Status: env.Status, Return: env.ToolReturn}, nil
	case "stop_reason":
		return StopReason{Reason: env.StopReason}, nil
	case "usage_statistics":
		return UsageStatistics{
			PromptTokens:     env.PromptTokens,
			CompletionTokens: env.CompletionTokens,
			TotalTokens:      env.TotalTokens,
			StepCount:        env.StepCount,
		}, nil
	default:
		return UnknownEvent{Type: env.MessageType, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// assistantContent accepts a plain string, a list of text parts, or a
// single {"text": ...} object.
func assistantContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String()
	}

	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}

// AssistantText concatenates assistant-authored text in arrival order,
// ignoring every other event kind.
func AssistantText(events []Event) string {
	var sb strings.Builder
	for _, ev := range events {
		switch e := ev.(type) {
		case AssistantMessage:
			sb.WriteString(e.Text)
		case ReasoningMessage, ToolCallMessage, ToolReturnMessage, StopReason, UsageStatistics, UnknownEvent:
		}
	}
	return sb.String()
}
