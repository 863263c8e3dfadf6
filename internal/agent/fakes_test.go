package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/media"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

const testBotID = "bot-1"

// fakeAgent answers from a queue of scripted results and records requests.
type fakeAgent struct {
	mu      sync.Mutex
	results []agentResult
	reqs    []providers.MessageRequest
}

type agentResult struct {
	reply string
	err   error
	delay time.Duration
}

func (a *fakeAgent) SendMessage(_ context.Context, req providers.MessageRequest) (string, error) {
	a.mu.Lock()
	a.reqs = append(a.reqs, req)
	if len(a.results) == 0 {
		a.mu.Unlock()
		return "", errors.New("fakeAgent: no scripted result")
	}
	r := a.results[0]
	a.results = a.results[1:]
	a.mu.Unlock()

	time.Sleep(r.delay)
	return r.reply, r.err
}

func (a *fakeAgent) calls() []providers.MessageRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]providers.MessageRequest(nil), a.reqs...)
}

// fakePlatform stores messages by id and records outbound traffic.
type fakePlatform struct {
	mu       sync.Mutex
	botID    string
	messages map[string]*bus.InboundMessage
	cached   map[string]*bus.InboundMessage
	fetchErr error
	fetches  int
	typing   int
	replies  []string
	sent     []bus.OutboundMessage
	channels map[string]bool
	onFetch  func(n int) (*bus.InboundMessage, error)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		botID:    testBotID,
		messages: make(map[string]*bus.InboundMessage),
		cached:   make(map[string]*bus.InboundMessage),
		channels: make(map[string]bool),
	}
}

func (p *fakePlatform) BotUserID() string { return p.botID }

func (p *fakePlatform) FetchMessage(_ context.Context, channelID, messageID string) (*bus.InboundMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.onFetch != nil {
		return p.onFetch(p.fetches)
	}
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	m, ok := p.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found in %s", messageID, channelID)
	}
	return m, nil
}

func (p *fakePlatform) CachedMessage(_, messageID string) (*bus.InboundMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.cached[messageID]
	return m, ok
}

func (p *fakePlatform) SendTyping(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typing++
	return nil
}

func (p *fakePlatform) Reply(_ context.Context, _ *bus.InboundMessage, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies = append(p.replies, text)
	return nil
}

func (p *fakePlatform) Send(_ context.Context, msg bus.OutboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePlatform) ResolveChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.channels[channelID] {
		return fmt.Errorf("unknown channel %s", channelID)
	}
	return nil
}

func (p *fakePlatform) typingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typing
}

func (p *fakePlatform) replyTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.replies...)
}

// fakeFetcher serves image bytes keyed by URL.
type fakeFetcher struct {
	mu     sync.Mutex
	images map[string][]byte
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ time.Duration) (*media.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	data, ok := f.images[url]
	if !ok {
		return nil, fmt.Errorf("404 %s", url)
	}
	return &media.Image{URL: url, MediaType: "image/png", Data: data}, nil
}

// fakeCompressor truncates to a fixed size so tests can spot compressed data.
type fakeCompressor struct {
	mu          sync.Mutex
	compressed  int
	lastResorts int
	err         error
}

func (c *fakeCompressor) CompressToLimit(_ context.Context, buf []byte, limit int64) (*media.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compressed++
	if c.err != nil {
		return nil, c.err
	}
	return &media.Result{Data: []byte(strings.Repeat("c", int(limit/2))), MediaType: "image/webp", Codec: "webp", Attempts: 1}, nil
}

func (c *fakeCompressor) LastResort(_ context.Context, buf []byte, limit int64) (*media.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastResorts++
	if c.err != nil {
		return nil, c.err
	}
	return &media.Result{Data: []byte("tiny"), MediaType: "image/jpeg", Codec: "jpeg", Attempts: 2}, nil
}

func imageAttachment(url string) bus.Attachment {
	return bus.Attachment{URL: url, ContentType: "image/png", Filename: "a.png"}
}

func userMessage(id, content string) *bus.InboundMessage {
	return &bus.InboundMessage{
		ID:        id,
		ChannelID: "chan-1",
		GuildID:   "guild-1",
		Author:    bus.Author{ID: "user-7", Username: "alice", DisplayName: "Alice"},
		Content:   content,
	}
}
