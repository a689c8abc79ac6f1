// Package pipeline orchestrates the voice-to-care-plan flow: transcribe the
// conversation audio, extract structured care-plan fields, resolve the
// subject to a client record, and persist the report.
//
// A run never throws away upstream work because a downstream stage failed:
// the transcript survives a failed extraction, and a report is persisted
// without a client link when resolution is impossible. The composite
// [Result] reports the outcome of every stage so callers can show exactly
// how far a conversation got.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/carescribe/carescribe/internal/extract"
	"github.com/carescribe/carescribe/internal/observe"
	"github.com/carescribe/carescribe/internal/reportstore"
	"github.com/carescribe/carescribe/internal/resolve"
	"github.com/carescribe/carescribe/internal/transcriptstore"
	"github.com/carescribe/carescribe/pkg/provider/stt"
)

var (
	// ErrMissingOwner is returned by [Pipeline.Run] when the input has no
	// owner ID.
	ErrMissingOwner = errors.New("pipeline: owner id must not be empty")

	// ErrEmptyInput is returned by [Pipeline.Run] when the input has neither
	// audio nor text.
	ErrEmptyInput = errors.New("pipeline: either audio or text must be provided")
)

// Status is the outcome of one pipeline stage.
type Status string

const (
	// StatusPending means the stage never started (an earlier stage failed).
	StatusPending Status = "pending"
	// StatusSucceeded means the stage completed.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the stage ran and failed.
	StatusFailed Status = "failed"
	// StatusSkipped means the stage was deliberately not run (e.g. client
	// resolution without a subject name).
	StatusSkipped Status = "skipped"
)

// FailureKind classifies a stage failure for callers and metrics.
type FailureKind string

const (
	// KindTranscription covers STT backend failures.
	KindTranscription FailureKind = "transcription"
	// KindRefusal means the model produced no structured payload.
	KindRefusal FailureKind = "refusal"
	// KindValidation means the payload was missing required fields.
	KindValidation FailureKind = "validation"
	// KindService covers extraction transport/service failures.
	KindService FailureKind = "service"
	// KindResolution covers client lookup/creation failures.
	KindResolution FailureKind = "resolution"
	// KindPersistence covers store write failures.
	KindPersistence FailureKind = "persistence"
)

// Stage is the outcome of one pipeline stage, carrying the stage's product
// when it succeeded and the failure classification when it did not.
type Stage[T any] struct {
	Status Status      `json:"status"`
	Value  T           `json:"value,omitempty"`
	Kind   FailureKind `json:"kind,omitempty"`
	Err    error       `json:"-"`
}

// Failed reports whether the stage ran and failed.
func (s Stage[T]) Failed() bool { return s.Status == StatusFailed }

// fail marks the stage failed with a classification.
func (s *Stage[T]) fail(kind FailureKind, err error) {
	s.Status = StatusFailed
	s.Kind = kind
	s.Err = err
}

// succeed marks the stage succeeded with its product.
func (s *Stage[T]) succeed(v T) {
	s.Status = StatusSucceeded
	s.Value = v
}

// Result is the composite outcome of one pipeline run. Every stage is
// reported, including the ones that never ran.
type Result struct {
	Transcript Stage[*transcriptstore.Transcription] `json:"transcript"`
	Extraction Stage[*extract.Fields]                `json:"extraction"`
	Client     Stage[*resolve.Resolution]            `json:"client"`
	Report     Stage[*reportstore.Report]            `json:"report"`
}

// Persisted reports whether the run produced a stored report.
func (r *Result) Persisted() bool { return r.Report.Status == StatusSucceeded }

// Outcome summarises the run for logs and metrics: "persisted" when a
// report was stored, otherwise the name of the first failed stage.
func (r *Result) Outcome() string {
	if r.Persisted() {
		return "persisted"
	}
	switch {
	case r.Transcript.Failed():
		return "transcription_failed"
	case r.Extraction.Failed():
		return "extraction_failed"
	case r.Report.Failed():
		return "persistence_failed"
	default:
		return "incomplete"
	}
}

// Input is one conversation submitted to the pipeline.
type Input struct {
	// OwnerID is the care manager submitting the conversation. Required.
	OwnerID string

	// Audio is the recorded conversation. Ignored when Text is set.
	Audio []byte

	// AudioName is the original file name, kept for audit.
	AudioName string

	// Codec describes the audio encoding (e.g. "wav", "webm", "pcm").
	Codec string

	// SampleRate is the PCM sample rate; zero lets the provider default.
	SampleRate int

	// Text, when non-empty, bypasses transcription: the conversation was
	// typed or pasted rather than recorded.
	Text string
}

// Resolver is the client-resolution capability the pipeline depends on.
type Resolver interface {
	Resolve(ctx context.Context, ownerID, subjectName string, hints resolve.Hints) (*resolve.Resolution, error)
}

// Pipeline wires the four stages together. All collaborators are injected
// at construction; the pipeline owns only sequencing and failure policy.
type Pipeline struct {
	transcriber stt.Transcriber
	extractor   extract.Extractor
	resolver    Resolver
	transcripts transcriptstore.Store
	reports     reportstore.Store

	language          string
	transcribeTimeout time.Duration
	extractTimeout    time.Duration

	metrics *observe.Metrics
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLanguage sets the transcription language hint. Default "ja-JP".
func WithLanguage(lang string) Option {
	return func(p *Pipeline) { p.language = lang }
}

// WithTranscribeTimeout bounds the STT call. Default 2m.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.transcribeTimeout = d }
}

// WithExtractTimeout bounds the extraction call. Default 1m.
func WithExtractTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.extractTimeout = d }
}

// WithMetrics sets the metrics instance. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger. Default [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithIDFunc overrides the ID generator for transcriptions and reports.
func WithIDFunc(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New creates a Pipeline with the given collaborators.
func New(
	transcriber stt.Transcriber,
	extractor extract.Extractor,
	resolver Resolver,
	transcripts transcriptstore.Store,
	reports reportstore.Store,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		transcriber:       transcriber,
		extractor:         extractor,
		resolver:          resolver,
		transcripts:       transcripts,
		reports:           reports,
		language:          "ja-JP",
		transcribeTimeout: 2 * time.Minute,
		extractTimeout:    time.Minute,
		logger:            slog.Default(),
		newID:             func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Run processes one conversation end to end.
//
// The returned error is non-nil only for contract violations (missing
// owner). Stage failures are expected operating conditions and are reported
// inside the [Result]: a failed run still returns (result, nil) so callers
// always see how far the conversation got and what survived.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if in.OwnerID == "" {
		return nil, ErrMissingOwner
	}
	if in.Text == "" && len(in.Audio) == 0 {
		return nil, ErrEmptyInput
	}

	log := p.logger.With(slog.String("owner_id", in.OwnerID))
	res := &Result{}

	p.metrics.ActiveRuns.Add(ctx, 1)
	defer p.metrics.ActiveRuns.Add(ctx, -1)
	defer func() { p.metrics.RecordPipelineRun(ctx, res.Outcome()) }()

	// Stage 1: transcription.
	text, ok := p.transcribe(ctx, in, res, log)
	if !ok {
		return res, nil
	}

	if text == "" {
		// No speech: the (empty) transcript is stored for audit, but there
		// is nothing to extract from.
		log.Info("no speech detected, stopping after transcript")
		res.Extraction.Status = StatusSkipped
		res.Client.Status = StatusSkipped
		res.Report.Status = StatusSkipped
		return res, nil
	}

	// Stage 2: extraction.
	fields, ok := p.extract(ctx, text, res, log)
	if !ok {
		res.Client.Status = StatusSkipped
		res.Report.Status = StatusSkipped
		return res, nil
	}

	// Stage 3: client resolution. A failure here does not stop the run;
	// the report is persisted without a client link.
	clientID := p.resolveClient(ctx, in.OwnerID, fields, res, log)

	// Stage 4: persistence.
	p.persist(ctx, in.OwnerID, fields, clientID, res, log)

	log.Info("pipeline run finished", slog.String("outcome", res.Outcome()))
	return res, nil
}

// transcribe produces the transcript text, storing a transcription record
// when audio was submitted. Returns the text and whether the run may
// continue.
func (p *Pipeline) transcribe(ctx context.Context, in Input, res *Result, log *slog.Logger) (string, bool) {
	if in.Text != "" {
		// Typed input: no audio, no transcription record.
		res.Transcript.Status = StatusSkipped
		return in.Text, true
	}

	if p.transcriber == nil {
		err := errors.New("pipeline: no stt provider configured")
		log.Error("transcription failed", slog.String("error", err.Error()))
		p.metrics.RecordStageFailure(ctx, "transcription", string(KindTranscription))
		res.Transcript.fail(KindTranscription, err)
		res.Extraction.Status = StatusSkipped
		res.Client.Status = StatusSkipped
		res.Report.Status = StatusSkipped
		return "", false
	}

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, p.transcribeTimeout)
	defer cancel()

	text, err := p.transcriber.Transcribe(tctx, in.Audio, stt.Config{
		Codec:      in.Codec,
		SampleRate: in.SampleRate,
		Language:   p.language,
	})
	p.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordProviderRequest(ctx, "stt", providerStatus(err == nil || errors.Is(err, stt.ErrNoSpeech)))

	if err != nil && !errors.Is(err, stt.ErrNoSpeech) {
		log.Error("transcription failed", slog.String("error", err.Error()))
		p.metrics.RecordStageFailure(ctx, "transcription", string(KindTranscription))
		res.Transcript.fail(KindTranscription, fmt.Errorf("pipeline: transcribe: %w", err))
		res.Extraction.Status = StatusSkipped
		res.Client.Status = StatusSkipped
		res.Report.Status = StatusSkipped
		return "", false
	}

	// The write must survive caller cancellation: once audio has been
	// transcribed, losing the text would force a re-record.
	tr := &transcriptstore.Transcription{
		ID:              p.newID(),
		OwnerID:         in.OwnerID,
		Text:            text,
		SourceAudioName: in.AudioName,
	}
	if err := p.transcripts.Save(context.WithoutCancel(ctx), tr); err != nil {
		log.Error("transcript write failed", slog.String("error", err.Error()))
		p.metrics.RecordStageFailure(ctx, "transcription", string(KindPersistence))
		res.Transcript.fail(KindPersistence, fmt.Errorf("pipeline: save transcript: %w", err))
		res.Extraction.Status = StatusSkipped
		res.Client.Status = StatusSkipped
		res.Report.Status = StatusSkipped
		return "", false
	}

	res.Transcript.succeed(tr)
	log.Debug("transcript stored",
		slog.String("transcription_id", tr.ID),
		slog.Int("chars", len(text)),
	)
	return text, true
}

// extract runs schema-constrained extraction over the transcript text.
func (p *Pipeline) extract(ctx context.Context, text string, res *Result, log *slog.Logger) (*extract.Fields, bool) {
	start := time.Now()
	ectx, cancel := context.WithTimeout(ctx, p.extractTimeout)
	defer cancel()

	fields, err := p.extractor.Extract(ectx, text)
	p.metrics.ExtractionDuration.Record(ctx, time.Since(start).Seconds())
	p.metrics.RecordProviderRequest(ctx, "extractor", providerStatus(err == nil))

	if err != nil {
		kind := classifyExtractionError(err)
		log.Warn("extraction failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		p.metrics.RecordStageFailure(ctx, "extraction", string(kind))
		res.Extraction.fail(kind, err)
		return nil, false
	}

	res.Extraction.succeed(fields)
	return fields, true
}

// resolveClient links the extracted subject to a client record. Returns the
// client ID to attach to the report, or nil when no link could be made.
func (p *Pipeline) resolveClient(ctx context.Context, ownerID string, fields *extract.Fields, res *Result, log *slog.Logger) *string {
	if fields.SubjectName == "" {
		// Nothing to resolve; the report is persisted unlinked.
		res.Client.Status = StatusSkipped
		return nil
	}

	start := time.Now()
	resolution, err := p.resolver.Resolve(ctx, ownerID, fields.SubjectName, resolve.Hints{
		Age:       fields.SubjectAge,
		CareLevel: fields.CareLevel,
	})
	p.metrics.ResolutionDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		log.Warn("client resolution failed", slog.String("error", err.Error()))
		p.metrics.RecordStageFailure(ctx, "resolution", string(KindResolution))
		res.Client.fail(KindResolution, fmt.Errorf("pipeline: resolve client: %w", err))
		return nil
	}

	if resolution.Created {
		p.metrics.ClientsCreated.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("owner_id", ownerID)))
		log.Info("provisional client created",
			slog.String("client_id", resolution.ClientID),
			slog.Int("suggestions", len(resolution.Suggestions)),
		)
	}
	if resolution.Ambiguous {
		log.Warn("ambiguous client name",
			slog.String("client_id", resolution.ClientID),
			slog.Int("candidates", len(resolution.CandidateIDs)),
		)
	}

	res.Client.succeed(resolution)
	return &resolution.ClientID
}

// persist writes the care-plan report, linking whatever upstream products
// exist.
func (p *Pipeline) persist(ctx context.Context, ownerID string, fields *extract.Fields, clientID *string, res *Result, log *slog.Logger) {
	report := &reportstore.Report{
		ID:                 p.newID(),
		OwnerID:            ownerID,
		ClientID:           clientID,
		SubjectName:        fields.SubjectName,
		SubjectAge:         fields.SubjectAge,
		CareLevel:          fields.CareLevel,
		LifeIssues:         fields.LifeIssues,
		LongTermGoal:       fields.LongTermGoal,
		LongTermGoalPeriod: fields.LongTermGoalPeriod,
		ShortTermNeeds:     fields.ShortTermNeeds,
		Services:           fields.Services,
		Equipment:          fields.Equipment,
		Remarks:            fields.Remarks,
	}
	if tr := res.Transcript.Value; tr != nil {
		report.TranscriptionID = &tr.ID
	}

	start := time.Now()
	err := p.reports.Create(context.WithoutCancel(ctx), report)
	p.metrics.PersistenceDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		log.Error("report write failed", slog.String("error", err.Error()))
		p.metrics.RecordStageFailure(ctx, "persistence", string(KindPersistence))
		res.Report.fail(KindPersistence, fmt.Errorf("pipeline: save report: %w", err))
		return
	}

	res.Report.succeed(report)
	log.Debug("report stored", slog.String("report_id", report.ID))
}

// providerStatus maps a call outcome to the metrics status label.
func providerStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// classifyExtractionError maps extraction errors onto failure kinds.
func classifyExtractionError(err error) FailureKind {
	var verr *extract.ValidationError
	var serr *extract.ServiceError
	switch {
	case errors.Is(err, extract.ErrRefused):
		return KindRefusal
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &serr), errors.Is(err, context.DeadlineExceeded):
		return KindService
	default:
		return KindService
	}
}
