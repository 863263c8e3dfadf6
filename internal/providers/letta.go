package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultLettaBaseURL = "https://api.letta.com"
	maxErrorBody        = 64 * 1024
	maxSSELine          = 4 * 1024 * 1024
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/lettabot/internal/providers")

// LettaClient implements Agent against the Letta agents API via net/http.
type LettaClient struct {
	apiKey  string
	agentID string
	baseURL string
	stream  bool
	client  *http.Client
}

// NewLettaClient creates a client bound to one agent.
func NewLettaClient(apiKey, agentID string, opts ...LettaOption) *LettaClient {
	c := &LettaClient{
		apiKey:  apiKey,
		agentID: agentID,
		baseURL: defaultLettaBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type LettaOption func(*LettaClient)

func WithBaseURL(baseURL string) LettaOption {
	return func(c *LettaClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) LettaOption {
	return func(c *LettaClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithStreaming selects the SSE endpoint instead of the single-shot one.
func WithStreaming(on bool) LettaOption {
	return func(c *LettaClient) { c.stream = on }
}

func (c *LettaClient) AgentID() string { return c.agentID }

// SendMessage posts req to the agent and returns the assistant text.
// Malformed response bodies degrade to "" with a warning.
func (c *LettaClient) SendMessage(ctx context.Context, req MessageRequest) (string, error) {
	if c.agentID == "" {
		return "", ErrMissingAgentID
	}

	ctx, span := tracer.Start(ctx, "letta.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("stream", c.stream),
		attribute.Int("parts", len(req.Parts)),
	)

	body := buildRequestBody(req)
	path := "/messages"
	if c.stream {
		path = "/messages/stream"
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, c.agentPath(path), body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer respBody.Close()

	var events []Event
	if c.stream {
		events, err = readStream(respBody)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("letta: read stream: %w", err)
		}
	} else {
		events = readResponse(respBody)
	}

	text := AssistantText(events)
	span.SetAttributes(attribute.Int("events", len(events)), attribute.Int("reply_len", len(text)))
	return text, nil
}

// Ping checks that the agent exists and the credentials are accepted.
func (c *LettaClient) Ping(ctx context.Context) error {
	if c.agentID == "" {
		return ErrMissingAgentID
	}
	respBody, err := c.doRequest(ctx, http.MethodGet, c.agentPath(""), nil)
	if err != nil {
		return err
	}
	respBody.Close()
	return nil
}

func (c *LettaClient) agentPath(suffix string) string {
	return c.baseURL + "/v1/agents/" + url.PathEscape(c.agentID) + suffix
}

func buildRequestBody(req MessageRequest) lettaRequest {
	role := req.Role
	if role == "" {
		role = "user"
	}
	msg := lettaMessage{Role: role, Name: req.Name}
	if len(req.Parts) > 0 {
		msg.Content = req.Parts
	} else {
		msg.Content = req.Text
	}
	return lettaRequest{Messages: []lettaMessage{msg}}
}

func (c *LettaClient) doRequest(ctx context.Context, method, endpoint string, body interface{}) (io.ReadCloser, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("letta: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("letta: create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("letta: request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, newHTTPError(resp.StatusCode, respBody)
	}

	return resp.Body, nil
}

func readResponse(r io.Reader) []Event {
	var resp lettaResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		slog.Warn("letta: malformed response, treating as empty", "error", err)
		return nil
	}
	events := make([]Event, 0, len(resp.Messages))
	for _, raw := range resp.Messages {
		ev, err := ParseEvent(raw)
		if err != nil {
			slog.Warn("letta: skipping malformed message", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events
}

// readStream consumes SSE "data:" lines until [DONE] or EOF.
func readStream(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var events []Event
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		ev, err := ParseEvent([]byte(data))
		if err != nil {
			slog.Warn("letta: skipping malformed stream chunk", "error", err)
			continue
		}
		if u, ok := ev.(UsageStatistics); ok {
			slog.Debug("letta usage", "prompt_tokens", u.PromptTokens, "completion_tokens", u.CompletionTokens, "steps", u.StepCount)
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
