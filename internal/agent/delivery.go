package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/lettabot/internal/bus"
	"github.com/nextlevelbuilder/lettabot/internal/media"
	"github.com/nextlevelbuilder/lettabot/internal/providers"
)

const (
	defaultImageMaxBytes  = 5 * 1024 * 1024
	defaultFetchTimeout   = 20 * time.Second
	defaultRefetchTimeout = 15 * time.Second
)

// ErrEmptyReply marks a stage that completed without any assistant text.
var ErrEmptyReply = errors.New("agent returned an empty reply")

var tracer = otel.Tracer("github.com/nextlevelbuilder/lettabot/internal/agent")

// ImageFetcher downloads attachment bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*media.Image, error)
}

// ImageCompressor shrinks images below a byte ceiling.
type ImageCompressor interface {
	CompressToLimit(ctx context.Context, buf []byte, limit int64) (*media.Result, error)
	LastResort(ctx context.Context, buf []byte, limit int64) (*media.Result, error)
}

// DeliveryConfig configures a DeliveryPipeline.
type DeliveryConfig struct {
	Agent          providers.Agent
	Fetcher        ImageFetcher
	Compressor     ImageCompressor
	MaxBytes       int64         // per-image ceiling of the agent service
	FetchTimeout   time.Duration // per image in the inline stage
	RefetchTimeout time.Duration // first image in the adaptive stage
}

// DeliveryPipeline sends image attachments to the agent, falling back from
// URL references to inline bytes to an aggressively re-compressed retry.
// Each stage makes at most one agent call and stages run strictly in order.
type DeliveryPipeline struct {
	agent          providers.Agent
	fetcher        ImageFetcher
	compressor     ImageCompressor
	maxBytes       int64
	fetchTimeout   time.Duration
	refetchTimeout time.Duration
}

// NewDeliveryPipeline creates a pipeline, applying defaults for unset limits.
func NewDeliveryPipeline(cfg DeliveryConfig) *DeliveryPipeline {
	p := &DeliveryPipeline{
		agent:          cfg.Agent,
		fetcher:        cfg.Fetcher,
		compressor:     cfg.Compressor,
		maxBytes:       cfg.MaxBytes,
		fetchTimeout:   cfg.FetchTimeout,
		refetchTimeout: cfg.RefetchTimeout,
	}
	if p.maxBytes <= 0 {
		p.maxBytes = defaultImageMaxBytes
	}
	if p.fetchTimeout <= 0 {
		p.fetchTimeout = defaultFetchTimeout
	}
	if p.refetchTimeout <= 0 {
		p.refetchTimeout = defaultRefetchTimeout
	}
	return p
}

// Deliver returns the agent's reply to images plus text. It fails only when
// every stage is exhausted; an empty string with a nil error means the agent
// accepted the images and chose not to answer.
func (p *DeliveryPipeline) Deliver(ctx context.Context, images []bus.Attachment, text, requesterID string) (string, error) {
	if len(images) == 0 {
		return "", fmt.Errorf("deliver: no images")
	}
	prompt := imagePromptText(text, requesterID)

	reply, err := p.referenceSend(ctx, images, prompt)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, providers.ErrMissingAgentID) {
		return "", err
	}
	slog.Info("reference send failed, inlining images", "images", len(images), "error", err)

	reply, err = p.inlineSend(ctx, images, prompt)
	switch {
	case err == nil:
		return reply, nil
	case errors.Is(err, ErrEmptyReply):
		return "", nil
	case !providers.IsPayloadTooLarge(err):
		return "", fmt.Errorf("inline send: %w", err)
	}
	slog.Warn("agent rejected inline payload as too large, retrying with last-resort compression", "error", err)

	reply, retryErr := p.adaptiveRetry(ctx, images, prompt)
	if retryErr != nil {
		return "", fmt.Errorf("adaptive retry: %w (inline send: %v)", retryErr, err)
	}
	return reply, nil
}

// referenceSend passes the attachment URLs through untouched.
func (p *DeliveryPipeline) referenceSend(ctx context.Context, images []bus.Attachment, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "delivery.reference_send")
	defer span.End()

	parts := make([]providers.ContentPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, providers.ImageURLPart(img.Link()))
	}
	parts = append(parts, providers.TextPart(prompt))

	return p.send(ctx, span, parts)
}

// inlineSend downloads every image, compresses the oversized ones and
// embeds them all as base64.
func (p *DeliveryPipeline) inlineSend(ctx context.Context, images []bus.Attachment, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "delivery.inline_send")
	defer span.End()

	inlined := make([]providers.ContentPart, len(images))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range images {
		g.Go(func() error {
			part, err := p.inlinePart(gctx, i, img)
			if err != nil {
				return err
			}
			inlined[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return p.send(ctx, span, append(inlined, providers.TextPart(prompt)))
}

func (p *DeliveryPipeline) inlinePart(ctx context.Context, i int, att bus.Attachment) (providers.ContentPart, error) {
	img, err := p.fetcher.Fetch(ctx, att.Link(), p.fetchTimeout)
	if err != nil {
		return providers.ContentPart{}, fmt.Errorf("fetch image %d: %w", i+1, err)
	}
	data, mediaType := img.Data, img.MediaType

	if int64(len(data)) > p.maxBytes {
		res, err := p.compressor.CompressToLimit(ctx, data, p.maxBytes)
		if err != nil {
			return providers.ContentPart{}, fmt.Errorf("compress image %d: %w", i+1, err)
		}
		slog.Info("compressed image",
			"index", i+1,
			"from_bytes", len(data),
			"to_bytes", len(res.Data),
			"codec", res.Codec,
			"attempts", res.Attempts,
		)
		data, mediaType = res.Data, res.MediaType
	}
	return providers.ImageDataPart(mediaType, data), nil
}

// adaptiveRetry re-fetches only the first image, squeezes it with the
// last-resort settings and resends; the rest go by reference.
func (p *DeliveryPipeline) adaptiveRetry(ctx context.Context, images []bus.Attachment, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "delivery.adaptive_retry")
	defer span.End()

	img, err := p.fetcher.Fetch(ctx, images[0].Link(), p.refetchTimeout)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("refetch first image: %w", err)
	}
	res, err := p.compressor.LastResort(ctx, img.Data, p.maxBytes)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("first_image_bytes", len(res.Data)))

	parts := make([]providers.ContentPart, 0, len(images)+1)
	parts = append(parts, providers.ImageDataPart(res.MediaType, res.Data))
	for _, rest := range images[1:] {
		parts = append(parts, providers.ImageURLPart(rest.Link()))
	}
	parts = append(parts, providers.TextPart(prompt))

	reply, err := p.send(ctx, span, parts)
	if errors.Is(err, ErrEmptyReply) {
		return "", nil
	}
	return reply, err
}

// send makes the stage's single agent call. An empty reply is ErrEmptyReply.
func (p *DeliveryPipeline) send(ctx context.Context, span trace.Span, parts []providers.ContentPart) (string, error) {
	reply, err := p.agent.SendMessage(ctx, providers.MessageRequest{Role: "user", Parts: parts})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("reply_len", len(reply)))
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
