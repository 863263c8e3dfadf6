package providers

import (
	"context"
	"encoding/base64"
)

// Agent is the remote conversational agent the relay talks to.
type Agent interface {
	// SendMessage delivers one user message and returns the concatenated
	// assistant text of the reply. An empty string means the agent chose
	// not to answer (or answered with something unparseable).
	SendMessage(ctx context.Context, req MessageRequest) (string, error)
}

// MessageRequest is a single role-tagged message.
// When Parts is empty the content is sent as the plain Text string.
type MessageRequest struct {
	Role  string        // defaults to "user"
	Text  string
	Parts []ContentPart // text and image parts, in order
	Name  string        // sender attribution when not injected into the text
}

// ContentPart is one typed piece of message content.
type ContentPart struct {
	Type   string       `json:"type"` // "text", "image"
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource points at image data, either by URL or inline base64.
type ImageSource struct {
	Type      string `json:"type"` // "url", "base64"
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

func ImageURLPart(url string) ContentPart {
	return ContentPart{Type: "image", Source: &ImageSource{Type: "url", URL: url}}
}

// ImageDataPart embeds raw image bytes as base64.
func ImageDataPart(mediaType string, data []byte) ContentPart {
	return ContentPart{
		Type: "image",
		Source: &ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		},
	}
}

// Wire types for the agents messages endpoint.

type lettaRequest struct {
	Messages []lettaMessage `json:"messages"`
}

type lettaMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentPart
	Name    string      `json:"name,omitempty"`
}

type lettaResponse struct {
	Messages []rawJSON `json:"messages"`
}
