package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrCompressionExhausted is returned when an image cannot be brought under
// the byte limit within the attempt budget.
var ErrCompressionExhausted = errors.New("compression exhausted")

const (
	defaultMaxAttempts = 10

	startWidth   = 1400
	startQuality = 70

	qualityFloor     = 40 // stop stepping quality above this
	qualityStep      = 10
	qualityStepFloor = 35
	widthFloor       = 640
	widthFactor      = 0.8

	fallbackQuality  = 55
	fallbackWidthCap = 1024

	fallbackQualityStep  = 5
	fallbackQualityFloor = 30
	fallbackWidthFactor  = 0.85
	fallbackWidthFloor   = 480
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/lettabot/internal/media")

// Result is a re-encoded image that fits the requested limit.
type Result struct {
	Data      []byte
	MediaType string
	Codec     string
	Width     int
	Quality   int
	Attempts  int
}

// Compressor re-encodes images until they fit a byte ceiling.
type Compressor struct {
	Primary     Codec
	Fallback    Codec
	MaxAttempts int
}

// NewCompressor returns a Compressor using WebP first and JPEG as fallback.
func NewCompressor() *Compressor {
	return &Compressor{
		Primary:     WebPCodec{},
		Fallback:    JPEGCodec{},
		MaxAttempts: defaultMaxAttempts,
	}
}

// attempt is the working state carried across iterations.
type attempt struct {
	codec      Codec
	onFallback bool
	quality    int
	width      int
	count      int
}

// step lowers the encode parameters by one rung of the ladder.
func (a *attempt) step(fallback Codec) {
	switch {
	case a.quality > qualityFloor:
		a.quality = max(qualityStepFloor, a.quality-qualityStep)
	case a.width > widthFloor:
		a.width = max(widthFloor, int(float64(a.width)*widthFactor))
	case !a.onFallback:
		a.codec = fallback
		a.onFallback = true
		a.quality = fallbackQuality
		a.width = min(a.width, fallbackWidthCap)
	default:
		a.quality = max(fallbackQualityFloor, a.quality-fallbackQualityStep)
		a.width = max(fallbackWidthFloor, int(float64(a.width)*fallbackWidthFactor))
	}
}

// CompressToLimit re-encodes buf until it is at most limit bytes.
// Input already within the limit is returned unchanged. The output never
// exceeds limit: when the attempt budget runs out ErrCompressionExhausted is
// returned instead.
func (c *Compressor) CompressToLimit(ctx context.Context, buf []byte, limit int64) (*Result, error) {
	if int64(len(buf)) <= limit {
		return &Result{Data: buf, MediaType: SniffImageType(buf)}, nil
	}

	ctx, span := tracer.Start(ctx, "media.compress")
	defer span.End()
	span.SetAttributes(attribute.Int("input_bytes", len(buf)), attribute.Int64("limit", limit))

	img, err := decode(buf)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	st := attempt{codec: c.Primary, quality: startQuality, width: startWidth}
	var out []byte
	for st.count < maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err = encodeAt(img, st.codec, st.width, st.quality)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		st.count++

		slog.Debug("compress attempt",
			"attempt", st.count,
			"codec", st.codec.Name(),
			"width", st.width,
			"quality", st.quality,
			"bytes", len(out),
		)

		if int64(len(out)) <= limit {
			span.SetAttributes(attribute.Int("attempts", st.count), attribute.Int("output_bytes", len(out)))
			return &Result{
				Data:      out,
				MediaType: st.codec.MediaType(),
				Codec:     st.codec.Name(),
				Width:     st.width,
				Quality:   st.quality,
				Attempts:  st.count,
			}, nil
		}
		st.step(c.Fallback)
	}

	err = fmt.Errorf("%w: %d bytes after %d attempts (limit %d)", ErrCompressionExhausted, len(out), st.count, limit)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// lastResortSteps are fixed aggressive settings tried in order.
var lastResortSteps = []struct {
	fallback bool
	width    int
	quality  int
}{
	{fallback: false, width: 720, quality: 40},
	{fallback: true, width: 512, quality: 40},
}

// LastResort is used after the remote service rejected a payload the engine
// considered small enough. It jumps straight to small, low-quality output and
// gives up after two encodes.
func (c *Compressor) LastResort(ctx context.Context, buf []byte, limit int64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "media.last_resort")
	defer span.End()

	img, err := decode(buf)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out []byte
	for i, s := range lastResortSteps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		codec := c.Primary
		if s.fallback {
			codec = c.Fallback
		}
		out, err = encodeAt(img, codec, s.width, s.quality)
		if err != nil {
			return nil, err
		}
		slog.Debug("last-resort compress",
			"step", i+1,
			"codec", codec.Name(),
			"width", s.width,
			"quality", s.quality,
			"bytes", len(out),
		)
		if int64(len(out)) <= limit {
			return &Result{
				Data:      out,
				MediaType: codec.MediaType(),
				Codec:     codec.Name(),
				Width:     s.width,
				Quality:   s.quality,
				Attempts:  i + 1,
			}, nil
		}
	}

	err = fmt.Errorf("%w: last resort still %d bytes (limit %d)", ErrCompressionExhausted, len(out), limit)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}
