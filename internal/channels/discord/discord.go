package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/channels"
	"github.com/nextlevelbuilder/lettabot/internal/config"
)

const (
	maxMessageLen = 2000

	// stateMessageCache is the per-channel message history discordgo keeps,
	// used to re-check a message for late attachments without a fetch.
	stateMessageCache = 100
)

// Channel connects to Discord via the Bot API using gateway events.
// It implements both channels.Channel and channels.Platform.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string
	ctx       context.Context
}

var (
	_ channels.Channel  = (*Channel)(nil)
	_ channels.Platform = (*Channel)(nil)
)

// New creates a new Discord channel from config. Inbound messages that pass
// the allowlist are handed to handler.
func New(cfg config.DiscordConfig, handler channels.InboundHandler) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = stateMessageCache

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", handler, cfg.AllowFrom),
		session:     session,
		config:      cfg,
		ctx:         context.Background(),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")

	c.ctx = ctx
	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

func (c *Channel) BotUserID() string { return c.botUserID }

func (c *Channel) FetchMessage(ctx context.Context, channelID, messageID string) (*bus.InboundMessage, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch discord message %s: %w", messageID, err)
	}
	msg := toInbound(m)
	return &msg, nil
}

func (c *Channel) CachedMessage(channelID, messageID string) (*bus.InboundMessage, bool) {
	m, err := c.session.State.Message(channelID, messageID)
	if err != nil || m == nil {
		return nil, false
	}
	msg := toInbound(m)
	return &msg, true
}

func (c *Channel) SendTyping(ctx context.Context, channelID string) error {
	return c.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// Reply answers msg. The first chunk is a threaded reply; any overflow
// follows as plain messages.
func (c *Channel) Reply(ctx context.Context, msg *bus.InboundMessage, text string) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	chunks := splitMessage(text, maxMessageLen)
	if len(chunks) == 0 {
		return nil
	}

	ref := &discordgo.MessageReference{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	if _, err := c.session.ChannelMessageSendReply(msg.ChannelID, chunks[0], ref, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord reply: %w", err)
	}
	return c.sendChunks(ctx, msg.ChannelID, chunks[1:])
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChannelID == "" {
		return fmt.Errorf("empty channel ID for discord send")
	}
	if msg.ReplyTo != "" {
		return c.Reply(ctx, &bus.InboundMessage{ID: msg.ReplyTo, ChannelID: msg.ChannelID}, msg.Content)
	}
	return c.sendChunks(ctx, msg.ChannelID, splitMessage(msg.Content, maxMessageLen))
}

func (c *Channel) ResolveChannel(ctx context.Context, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("no channel configured")
	}
	if _, err := c.session.Channel(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("resolve discord channel %s: %w", channelID, err)
	}
	return nil
}

func (c *Channel) sendChunks(ctx context.Context, channelID string, chunks []string) error {
	for _, chunk := range chunks {
		if _, err := c.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// handleMessage converts incoming Discord messages and forwards them.
// Self, bot and prefix filtering happen downstream in the classifier.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	msg := toInbound(m.Message)

	slog.Debug("discord message received",
		"sender_id", msg.Author.ID,
		"channel_id", msg.ChannelID,
		"is_dm", msg.IsDM,
		"attachments", len(msg.Attachments),
		"preview", channels.Truncate(msg.Content, 50),
	)

	if !c.HandleMessage(c.ctx, msg) {
		slog.Debug("discord message rejected by allowlist",
			"user_id", msg.Author.ID,
			"username", msg.Author.Username,
		)
	}
}

// toInbound maps a discordgo message onto the relay's platform-neutral shape.
func toInbound(m *discordgo.Message) bus.InboundMessage {
	msg := bus.InboundMessage{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		IsDM:      m.GuildID == "",
	}

	if m.Author != nil {
		msg.Author = bus.Author{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: resolveDisplayName(m),
			Bot:         m.Author.Bot,
		}
	}

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, bus.Attachment{
			URL:         a.URL,
			ProxyURL:    a.ProxyURL,
			ContentType: a.ContentType,
			Size:        int64(a.Size),
			Filename:    a.Filename,
		})
	}

	for _, u := range m.Mentions {
		if u != nil {
			msg.Mentions = append(msg.Mentions, u.ID)
		}
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		channelID := ref.ChannelID
		if channelID == "" {
			channelID = m.ChannelID
		}
		msg.Reference = &bus.MessageRef{MessageID: ref.MessageID, ChannelID: channelID}
	}

	return msg
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// splitMessage cuts content into chunks of at most max runes, preferring to
// break after a newline in the back half of a chunk.
func splitMessage(content string, max int) []string {
	var chunks []string
	for content != "" {
		if utf8.RuneCountInString(content) <= max {
			chunks = append(chunks, content)
			break
		}

		// byte offset of the max-th rune
		cutAt := len(content)
		n := 0
		for i := range content {
			if n == max {
				cutAt = i
				break
			}
			n++
		}

		if idx := strings.LastIndexByte(content[:cutAt], '\n'); idx > cutAt/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, content[:cutAt])
		content = content[cutAt:]
	}
	return chunks
}
