package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
)

const (
	replyQuoteMaxLen = 100

	// defaultHeartbeatPrompt is sent to the agent when the random timer fires.
	defaultHeartbeatPrompt = "[EVENT] This is an automated timed heartbeat (visible to you only). " +
		"Use this event to send a message to the channel, to reflect and edit your memories, or do nothing at all. " +
		"If you do not want to say anything, reply with an empty message."

	imageFailureText = "❌ Couldn’t process the image."

	configErrorText = "Beep boop. My configuration is not set up properly. Please message me after I get fixed 👾"
	agentErrorText  = "Beep boop. An error occurred while communicating with the Letta server. Please message me again later 👾"
)

// senderReceipt identifies the sender to the agent, with the platform id so
// the agent can @-tag them back.
func senderReceipt(a bus.Author) string {
	return fmt.Sprintf("%s (id=%s)", a.Name(), a.ID)
}

// role describes the message's conversational role from the bot's viewpoint.
func (k Kind) role() string {
	switch k {
	case KindDirectMessage:
		return "sent you a direct message"
	case KindMention:
		return "mentioned you"
	case KindReplyToSelf:
		return "replied to you"
	default:
		return "sent a message in the channel"
	}
}

// withSenderPrefix wraps text in the bracketed attribution annotation.
func withSenderPrefix(text, receipt string, k Kind) string {
	return fmt.Sprintf("[%s %s] %s", receipt, k.role(), text)
}

// replyContext prefixes content with a quote of the bot message it answers.
func replyContext(original, content string) string {
	return fmt.Sprintf("[Replying to previous message: \"%s\"] %s", truncateQuote(original, replyQuoteMaxLen), content)
}

// truncateQuote keeps at most max runes, marking the cut with "...".
func truncateQuote(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}

// imagePromptText is the text part sent alongside images.
func imagePromptText(userText, requesterID string) string {
	if t := strings.TrimSpace(userText); t != "" {
		return t
	}
	return fmt.Sprintf("Describe the image sent by user %s.", requesterID)
}
