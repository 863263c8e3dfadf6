package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/config"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

// Kind is the conversational role of a message the bot will answer.
type Kind int

const (
	KindDirectMessage Kind = iota + 1
	KindMention
	KindReplyToSelf
	KindGeneric
)

func (k Kind) String() string {
	switch k {
	case KindDirectMessage:
		return "dm"
	case KindMention:
		return "mention"
	case KindReplyToSelf:
		return "reply"
	case KindGeneric:
		return "generic"
	default:
		return "unknown"
	}
}

// Discard reasons. An empty reason means the message was accepted.
const (
	DiscardSelf         = "self"
	DiscardBot          = "bot"
	DiscardCommand      = "command"
	DiscardDMDisabled   = "dm_disabled"
	DiscardNotAddressed = "not_addressed"
)

// ClassifiedRequest is what the agent will be asked for one inbound message.
type ClassifiedRequest struct {
	Message *bus.InboundMessage
	Kind    Kind
	Text    string // derived text, possibly with reply context and sender prefix
	Name    string // sender receipt when it is not injected into Text
}

// AgentRequest converts the classification into the agent message.
func (r *ClassifiedRequest) AgentRequest() providers.MessageRequest {
	return providers.MessageRequest{Role: "user", Text: r.Text, Name: r.Name}
}

// MessageFetcher resolves a referenced message.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*bus.InboundMessage, error)
}

// Classifier decides whether and how the bot answers a message.
type Classifier struct {
	Fetcher       MessageFetcher
	CommandPrefix string
}

// Ignore applies the pre-filters that never depend on attachments: own
// messages, other bots (unless enabled) and command-prefixed text.
func (c *Classifier) Ignore(msg *bus.InboundMessage, botID string, opts config.RespondConfig) string {
	switch {
	case botID != "" && msg.Author.ID == botID:
		return DiscardSelf
	case msg.Author.Bot && !opts.Bots:
		return DiscardBot
	case c.CommandPrefix != "" && strings.HasPrefix(msg.Content, c.CommandPrefix):
		return DiscardCommand
	}
	return ""
}

// Classify runs the rule table in order; the first matching rule wins.
// A nil request comes with a non-empty discard reason.
func (c *Classifier) Classify(ctx context.Context, msg *bus.InboundMessage, botID string, opts config.RespondConfig) (*ClassifiedRequest, string) {
	if reason := c.Ignore(msg, botID, opts); reason != "" {
		return nil, reason
	}

	if msg.IsDM {
		if !opts.DMs {
			return nil, DiscardDMDisabled
		}
		return c.build(msg, KindDirectMessage, msg.Content, opts), ""
	}

	mentioned := msg.MentionsUser(botID)
	if opts.Mentions && (mentioned || msg.Reference != nil) {
		kind := KindMention
		text := msg.Content
		if msg.Reference != nil {
			original := c.fetchReference(ctx, msg.Reference)
			switch {
			case original != nil && botID != "" && original.Author.ID == botID:
				kind = KindReplyToSelf
				text = replyContext(original.Content, msg.Content)
			case mentioned:
				kind = KindMention
			default:
				kind = KindGeneric
			}
		}
		return c.build(msg, kind, text, opts), ""
	}

	if opts.Generic {
		return c.build(msg, KindGeneric, msg.Content, opts), ""
	}

	return nil, DiscardNotAddressed
}

// fetchReference returns the referenced message, or nil if it cannot be
// fetched. A failed lookup is treated as "not authored by the bot".
func (c *Classifier) fetchReference(ctx context.Context, ref *bus.MessageRef) *bus.InboundMessage {
	if c.Fetcher == nil || ref.MessageID == "" {
		return nil
	}
	original, err := c.Fetcher.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		slog.Debug("reference lookup failed", "message_id", ref.MessageID, "error", err)
		return nil
	}
	return original
}

func (c *Classifier) build(msg *bus.InboundMessage, kind Kind, text string, opts config.RespondConfig) *ClassifiedRequest {
	receipt := senderReceipt(msg.Author)
	req := &ClassifiedRequest{Message: msg, Kind: kind}
	if opts.SenderPrefix {
		req.Text = withSenderPrefix(text, receipt, kind)
	} else {
		req.Text = text
		req.Name = receipt
	}
	return req
}
