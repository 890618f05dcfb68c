package evaluation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"mathtutor/internal/common/metrics"
	"mathtutor/internal/evaluation/provider"
	pkgerrors "mathtutor/pkg/errors"
	"mathtutor/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	stageTranscribe = "transcribe"
	stageCompare    = "compare"

	defaultStageTimeout  = 90 * time.Second
	defaultMaxImageBytes = 10 << 20
)

// Image is the raw solution photo handed to the transcribing stage.
type Image struct {
	Data     []byte
	MIMEType string
}

type Transcription struct {
	Text string `json:"text"`
}

// Input names a stored solution image and the reference it is graded against.
type Input struct {
	ImageKey        string
	ImagePath       string
	ContentType     string
	CanonicalAnswer string
}

// Result is the model output recorded on a submission.
type Result struct {
	ImagePath       string  `json:"image_path"`
	Transcription   string  `json:"transcription"`
	CanonicalAnswer string  `json:"canonical_answer"`
	Verdict         Verdict `json:"verdict"`
}

// ImageSource opens stored images by key.
type ImageSource interface {
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

type PipelineConfig struct {
	TranscribeTimeout time.Duration `yaml:"transcribeTimeout"`
	CompareTimeout    time.Duration `yaml:"compareTimeout"`
	MaxImageBytes     int64         `yaml:"maxImageBytes"`
}

// Pipeline runs the two model stages: transcribe the image, then compare the
// transcription with the reference answer.
type Pipeline struct {
	provider provider.Provider
	images   ImageSource
	metrics  *metrics.Metrics
	cfg      PipelineConfig
}

func NewPipeline(p provider.Provider, images ImageSource, m *metrics.Metrics, cfg PipelineConfig) *Pipeline {
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = defaultStageTimeout
	}
	if cfg.CompareTimeout <= 0 {
		cfg.CompareTimeout = defaultStageTimeout
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	return &Pipeline{provider: p, images: images, metrics: m, cfg: cfg}
}

// Run loads the image behind in.ImageKey and grades it. The comparison stage
// only starts after a transcription succeeded.
func (p *Pipeline) Run(ctx context.Context, in Input) (Result, error) {
	img, err := p.loadImage(ctx, in.ImageKey, in.ContentType)
	if err != nil {
		return Result{}, err
	}
	transcription, err := p.Transcribe(ctx, img)
	if err != nil {
		return Result{}, err
	}
	verdict, err := p.Compare(ctx, transcription, in.CanonicalAnswer)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ImagePath:       in.ImagePath,
		Transcription:   transcription.Text,
		CanonicalAnswer: in.CanonicalAnswer,
		Verdict:         verdict,
	}, nil
}

// Transcribe asks the provider for a verbatim transcription of img.
func (p *Pipeline) Transcribe(ctx context.Context, img Image) (Transcription, error) {
	if len(img.Data) == 0 {
		return Transcription{}, pkgerrors.New(pkgerrors.InvalidFile).WithMessage("Image is empty")
	}
	// The provider rejects generic types such as application/octet-stream
	// for image parts.
	mimeType := strings.TrimSpace(img.MIMEType)
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		mimeType = http.DetectContentType(img.Data)
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.TranscribeTimeout)
	defer cancel()

	start := time.Now()
	text, err := p.provider.DescribeImage(stageCtx, TranscriptionInstruction(), img.Data, mimeType)
	if err == nil {
		text = NormalizeTranscription(text)
		if text == "" {
			err = errors.New("empty transcription")
		}
	}
	p.metrics.ObserveStage(stageTranscribe, p.provider.Name(), stageOutcome(err), time.Since(start))
	if err != nil {
		return Transcription{}, p.stageError(ctx, stageTranscribe, pkgerrors.TranscriptionFailed, err)
	}
	return Transcription{Text: text}, nil
}

// Compare grades a transcription against the canonical answer. Feedback
// without a recognisable closing sentence keeps UNKNOWN categories.
func (p *Pipeline) Compare(ctx context.Context, t Transcription, canonical string) (Verdict, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.cfg.CompareTimeout)
	defer cancel()

	start := time.Now()
	text, err := p.provider.Generate(stageCtx, BuildComparePrompt(t.Text, canonical))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty comparison")
	}
	p.metrics.ObserveStage(stageCompare, p.provider.Name(), stageOutcome(err), time.Since(start))
	if err != nil {
		return Verdict{}, p.stageError(ctx, stageCompare, pkgerrors.ComparisonFailed, err)
	}

	verdict := ParseVerdict(strings.TrimSpace(text))
	if !verdict.Parsed() {
		logger.Warn(ctx, "comparison verdict not recognised", zap.String("provider", p.provider.Name()))
	}
	p.metrics.ObserveVerdict(string(verdict.Approach), string(verdict.Answer))
	return verdict, nil
}

func (p *Pipeline) loadImage(ctx context.Context, key, contentType string) (Image, error) {
	if p.images == nil {
		return Image{}, pkgerrors.New(pkgerrors.StorageError).WithMessage("Image storage is not configured")
	}
	reader, err := p.images.GetObject(ctx, key)
	if err != nil {
		return Image{}, pkgerrors.Wrap(err, pkgerrors.StorageError)
	}
	defer reader.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, p.cfg.MaxImageBytes+1))
	if err != nil {
		return Image{}, pkgerrors.Wrap(err, pkgerrors.StorageError)
	}
	if n > p.cfg.MaxImageBytes {
		return Image{}, pkgerrors.New(pkgerrors.FileTooLarge)
	}
	return Image{Data: buf.Bytes(), MIMEType: contentType}, nil
}

func (p *Pipeline) stageError(ctx context.Context, stage string, code pkgerrors.ErrorCode, err error) error {
	logger.Error(ctx, "evaluation stage failed",
		zap.String("stage", stage),
		zap.String("provider", p.provider.Name()),
		zap.Error(err),
	)
	if errors.Is(err, provider.ErrUnavailable) {
		return pkgerrors.Wrap(err, pkgerrors.ModelProviderUnavailable)
	}
	return pkgerrors.Wrap(err, code)
}

func stageOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
