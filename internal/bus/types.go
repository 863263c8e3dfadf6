package bus

import "strings"

// InboundMessage represents a message received from the platform (Discord).
// It is read-only once built by the channel adapter.
type InboundMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	GuildID     string       `json:"guild_id,omitempty"` // empty for direct messages
	Author      Author       `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mentions    []string     `json:"mentions,omitempty"`  // user IDs mentioned in the message
	Reference   *MessageRef  `json:"reference,omitempty"` // set when the message replies to another one
	IsDM        bool         `json:"is_dm"`
}

// Author identifies the sender of an inbound message.
type Author struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"` // nick > global name > username
	Bot         bool   `json:"bot"`
}

// Name returns the best human-readable name for the author.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// MessageRef points at an earlier message in a conversation.
type MessageRef struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
}

// Attachment is a file attached to an inbound message.
type Attachment struct {
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url,omitempty"`
	ContentType string `json:"content_type,omitempty"` // MIME type declared by the platform
	Size        int64  `json:"size,omitempty"`         // 0 when unknown
	Filename    string `json:"filename,omitempty"`
}

// IsImage reports whether the attachment declares an image media type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.ContentType), "image/")
}

// Link returns the URL used to reference the attachment remotely.
func (a Attachment) Link() string {
	if a.URL != "" {
		return a.URL
	}
	return a.ProxyURL
}

// ImageAttachments returns the image attachments that have a usable link.
func (m *InboundMessage) ImageAttachments() []Attachment {
	var out []Attachment
	for _, a := range m.Attachments {
		if a.IsImage() && a.Link() != "" {
			out = append(out, a)
		}
	}
	return out
}

// HasImages reports whether the message carries at least one image attachment.
func (m *InboundMessage) HasImages() bool {
	return len(m.ImageAttachments()) > 0
}

// MentionsUser reports whether userID is explicitly mentioned.
func (m *InboundMessage) MentionsUser(userID string) bool {
	if userID == "" {
		return false
	}
	for _, id := range m.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"` // inbound message ID to reply to
}
