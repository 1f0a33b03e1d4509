package mot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LoopState is the step the tracking loop is executing
type LoopState int32

const (
	StateIdle LoopState = iota
	StateBackgroundCheck
	StateExtract
	StateFilter
	StateAssign
	StateHindsight
	StateCheckpoint
	StateFinish
	StateDone
)

func (state LoopState) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateBackgroundCheck:
		return "background_check"
	case StateExtract:
		return "extract"
	case StateFilter:
		return "filter"
	case StateAssign:
		return "assign"
	case StateHindsight:
		return "hindsight"
	case StateCheckpoint:
		return "checkpoint"
	case StateFinish:
		return "finish"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Progress is reported once per completed frame
type Progress struct {
	Frame       int
	Total       int
	Targets     int
	Corrections Corrections
}

// ProgressFunc receives progress. It runs on the tracking goroutine and should return quickly.
type ProgressFunc func(Progress)

// Tracker drives the per-frame pipeline: background, shapes, shadows, identities, hindsight
type Tracker struct {
	cfg         Config
	source      FrameSource
	background  BackgroundModel
	store       *AnnotationStore
	sink        AnnotationSink
	diagnostics DiagnosticsSink
	progress    ProgressFunc
	metrics     *Metrics
	log         logrus.FieldLogger
	cost        CostFunc
	predictor   MotionPredictor
	start       int
	// Exclusive; negative means up to the end of the source
	last int

	runID       uuid.UUID
	state       atomic.Int32
	stop        atomic.Bool
	backgrounds []BackgroundRecord
	corrections Corrections
	ambiguities int
	finished    bool
}

// Option customizes Tracker
type Option func(*Tracker)

// WithStore continues tracking in an existing store, e.g. one built by ResumeAnnotationStore
func WithStore(store *AnnotationStore) Option {
	return func(tracker *Tracker) {
		tracker.store = store
	}
}

// WithSink sets where committed frames go. Ignored when WithStore is used.
func WithSink(sink AnnotationSink) Option {
	return func(tracker *Tracker) {
		tracker.sink = sink
	}
}

// WithDiagnostics sets diagnostics snapshot sink
func WithDiagnostics(sink DiagnosticsSink) Option {
	return func(tracker *Tracker) {
		tracker.diagnostics = sink
	}
}

// WithChamber sets two-region chamber geometry and enables the shadow filter
func WithChamber(chamber Chamber) Option {
	return func(tracker *Tracker) {
		tracker.cfg.Chamber = &chamber
		tracker.cfg.UseShadowDetector = true
	}
}

// WithProgress sets per-frame progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(tracker *Tracker) {
		tracker.progress = fn
	}
}

// WithMetrics sets metrics collector
func WithMetrics(metrics *Metrics) Option {
	return func(tracker *Tracker) {
		tracker.metrics = metrics
	}
}

// WithLogger sets logger for loop events
func WithLogger(log logrus.FieldLogger) Option {
	return func(tracker *Tracker) {
		if log != nil {
			tracker.log = log
		}
	}
}

// WithRange limits tracking to frames [start, last). Negative last means the whole source.
func WithRange(start, last int) Option {
	return func(tracker *Tracker) {
		tracker.start = start
		tracker.last = last
	}
}

// WithCostFunc sets assignment cost strategy
func WithCostFunc(cost CostFunc) Option {
	return func(tracker *Tracker) {
		tracker.cost = cost
	}
}

// WithPredictor sets motion prediction strategy
func WithPredictor(predictor MotionPredictor) Option {
	return func(tracker *Tracker) {
		tracker.predictor = predictor
	}
}

// NewTracker creates tracking loop over the frame source
func NewTracker(cfg Config, source FrameSource, background BackgroundModel, opts ...Option) (*Tracker, error) {
	if source == nil {
		return nil, errors.New("nil frame source")
	}
	if background == nil {
		return nil, errors.New("nil background model")
	}
	tracker := &Tracker{
		cfg:        cfg,
		source:     source,
		background: background,
		log:        logger,
		start:      0,
		last:       -1,
		runID:      uuid.New(),
	}
	for _, opt := range opts {
		opt(tracker)
	}
	if err := tracker.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if tracker.start < 0 {
		return nil, errors.Errorf("negative start frame %d", tracker.start)
	}
	if tracker.store == nil {
		tracker.store = NewAnnotationStore(tracker.start, tracker.cfg.MaxLookback(), tracker.sink)
	} else if tracker.store.Window() < tracker.cfg.MaxLookback() {
		tracker.log.WithField("window", tracker.store.Window()).WithField("max_lookback", tracker.cfg.MaxLookback()).Warn("store window is shorter than hindsight lookback")
	}
	return tracker, nil
}

// RunID identifies this tracker in diagnostics
func (tracker *Tracker) RunID() uuid.UUID {
	return tracker.runID
}

// State returns current loop state. Safe for concurrent use.
func (tracker *Tracker) State() LoopState {
	return LoopState(tracker.state.Load())
}

// Stop asks the loop to finish at the next frame boundary. Safe for concurrent use.
func (tracker *Tracker) Stop() {
	tracker.stop.Store(true)
}

// Store returns the annotation store
func (tracker *Tracker) Store() *AnnotationStore {
	return tracker.store
}

// Backgrounds returns windows of every background used so far
func (tracker *Tracker) Backgrounds() []BackgroundWindow {
	windows := make([]BackgroundWindow, len(tracker.backgrounds))
	for i, bg := range tracker.backgrounds {
		windows[i] = bg.Window
	}
	return windows
}

// BackgroundHistory returns every background used so far with its image
func (tracker *Tracker) BackgroundHistory() []BackgroundRecord {
	return append([]BackgroundRecord(nil), tracker.backgrounds...)
}

// Corrections returns hindsight totals of the run
func (tracker *Tracker) Corrections() Corrections {
	return tracker.corrections
}

func (tracker *Tracker) setState(state LoopState) {
	tracker.state.Store(int32(state))
}

// Run tracks frames from the store's next frame up to the end of the range.
// Finish always runs, also when the loop stops early or fails; committed frames stay valid.
// Stop ends the run without error, context cancellation returns the context error.
func (tracker *Tracker) Run(ctx context.Context) (err error) {
	if tracker.finished {
		return ErrLoopFinished
	}
	total := tracker.source.NFrames()
	last := tracker.last
	if last < 0 || last > total {
		last = total
	}
	start := tracker.store.Last() + 1

	defer func() {
		if finishErr := tracker.finish(); finishErr != nil {
			if err == nil {
				err = finishErr
			} else {
				tracker.log.WithError(finishErr).Error("finish after failure")
			}
		}
	}()

	if start >= last {
		return nil
	}
	tracker.log.WithFields(logrus.Fields{
		"run_id": tracker.runID.String(),
		"start":  start,
		"last":   last,
		"total":  total,
	}).Info("tracking started")

	assigner := NewIdentityAssigner(tracker.cfg, tracker.store, WithAssignerCost(tracker.cost), WithAssignerPredictor(tracker.predictor))
	hindsight := NewHindsight(tracker.store, tracker.cfg)

	rnf := tracker.cfg.RecalcNFrames
	window := BackgroundWindow{First: 0, Last: total - 1}
	if rnf > 0 {
		window = BackgroundWindow{First: start, Last: minInt(start+rnf-1, total-1)}
	}
	tracker.setState(StateBackgroundCheck)
	if err := tracker.recomputeBackground(ctx, window); err != nil {
		return errors.Wrap(err, "initial background")
	}

	sinceRecalc := 0
	for frame := start; frame < last; frame++ {
		if tracker.stop.Load() {
			tracker.log.WithField("frame", frame).Info("tracking stopped")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			tracker.log.WithField("frame", frame).Info("tracking cancelled")
			return ctxErr
		}

		tracker.setState(StateBackgroundCheck)
		sinceRecalc++
		if rnf > 0 && sinceRecalc > rnf {
			// Not worth a new background for the last few frames
			if total-frame > rnf/2 {
				window := BackgroundWindow{First: frame, Last: minInt(frame+rnf-1, total-1)}
				if err := tracker.recomputeBackground(ctx, window); err != nil {
					return errors.Wrapf(err, "frame %d: recompute background", frame)
				}
			}
			sinceRecalc = 1
		}

		if err := tracker.track(ctx, frame, assigner, hindsight); err != nil {
			return errors.Wrapf(err, "frame %d", frame)
		}

		tracker.setState(StateCheckpoint)
		if tracker.cfg.DiagnosticsInterval > 0 && frame%tracker.cfg.DiagnosticsInterval == 0 {
			tracker.writeDiagnostics(frame, false)
		}
		if tracker.progress != nil {
			tracker.progress(Progress{
				Frame:       frame,
				Total:       last,
				Targets:     tracker.currentTargets(),
				Corrections: tracker.corrections,
			})
		}
	}
	return nil
}

// track runs extraction, assignment and hindsight for one frame
func (tracker *Tracker) track(ctx context.Context, frame int, assigner *IdentityAssigner, hindsight *Hindsight) error {
	img, err := tracker.source.Frame(ctx, frame)
	if err != nil {
		return errors.Wrap(err, "read frame")
	}

	tracker.setState(StateExtract)
	foreground, err := tracker.background.Classify(ctx, frame, img)
	if err != nil {
		return errors.Wrap(err, "classify")
	}
	observations, err := ExtractShapes(ctx, frame, foreground.Mask, foreground.Labeling, tracker.cfg)
	if err != nil {
		return errors.Wrap(err, "extract shapes")
	}

	tracker.setState(StateFilter)
	if tracker.cfg.UseShadowDetector && tracker.cfg.Chamber != nil {
		observations = FilterShadows(observations, *tracker.cfg.Chamber, tracker.cfg)
	}

	tracker.setState(StateAssign)
	result := assigner.Assign(frame, tracker.store.Tail(2), observations)
	if err := tracker.store.Append(result.Record); err != nil {
		return errors.Wrap(err, "append frame")
	}
	tracker.ambiguities += result.Ambiguities
	tracker.metrics.identitiesAllocated(len(result.Born))
	tracker.metrics.ambiguities(result.Ambiguities)
	if len(result.Splits) > 0 {
		tracker.log.WithField("frame", frame).WithField("splits", result.Splits).Debug("split candidates")
	}

	tracker.setState(StateHindsight)
	corrections, err := hindsight.FixErrors()
	if err != nil {
		return errors.Wrap(err, "hindsight")
	}
	tracker.corrections = tracker.corrections.Add(corrections)
	tracker.metrics.corrections(corrections)
	tracker.metrics.frameProcessed(tracker.currentTargets())
	return nil
}

func (tracker *Tracker) currentTargets() int {
	tail := tracker.store.Tail(1)
	if len(tail) == 0 {
		return 0
	}
	return tail[0].Len()
}

func (tracker *Tracker) recomputeBackground(ctx context.Context, window BackgroundWindow) error {
	st := time.Now()
	estimate, err := tracker.background.Recompute(ctx, window.First, window.Last)
	if err != nil {
		return err
	}
	tracker.backgrounds = append(tracker.backgrounds, BackgroundRecord{Window: window, Image: estimate})
	tracker.metrics.backgroundRecomputed()
	tracker.log.WithField("first", window.First).WithField("last", window.Last).WithField("elapsed", time.Since(st)).Info("background installed")
	return nil
}

func (tracker *Tracker) writeDiagnostics(frame int, final bool) {
	if tracker.diagnostics == nil {
		return
	}
	snapshot := Diagnostics{
		RunID:       tracker.runID,
		WrittenAt:   time.Now().UTC(),
		Frame:       frame,
		Final:       final,
		Targets:     tracker.currentTargets(),
		LastID:      tracker.store.LastID(),
		Corrections: tracker.corrections,
		Ambiguities: tracker.ambiguities,
		Backgrounds: tracker.Backgrounds(),
	}
	if err := tracker.diagnostics.Write(snapshot); err != nil {
		tracker.metrics.diagnosticsFailed()
		tracker.log.WithError(err).WithField("frame", frame).Warn("diagnostics write failed")
	}
	if !final {
		return
	}
	archive, ok := tracker.diagnostics.(BackgroundArchive)
	if !ok {
		return
	}
	if err := archive.WriteBackgrounds(tracker.BackgroundHistory()); err != nil {
		tracker.metrics.diagnosticsFailed()
		tracker.log.WithError(err).Warn("background archive failed")
	}
}

// finish flushes the store and writes final diagnostics. The tracker cannot run again afterwards.
func (tracker *Tracker) finish() error {
	tracker.setState(StateFinish)
	tracker.finished = true
	err := tracker.store.Finish()
	tracker.writeDiagnostics(tracker.store.Last(), true)
	tracker.setState(StateDone)
	tracker.log.WithFields(logrus.Fields{
		"run_id":     tracker.runID.String(),
		"last_frame": tracker.store.Last(),
		"last_id":    tracker.store.LastID(),
		"lost":       tracker.corrections.Lost,
		"spurious":   tracker.corrections.Spurious,
		"merged":     tracker.corrections.Merged,
		"split":      tracker.corrections.Split,
	}).Info("tracking finished")
	if err != nil {
		return errors.Wrap(err, "finish annotation store")
	}
	return nil
}
