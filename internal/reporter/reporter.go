package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trainbot/internal/notifier"
	"trainbot/pkg/chatfmt"
	logx "trainbot/pkg/logx"
)

type progress struct {
	cur   int
	total int
}

// Reporter is the set of training lifecycle hooks. Safe for concurrent use,
// though a well-behaved driver calls hooks sequentially:
//
//	OnRunStart → {OnEpochStart → {OnStepEnd}* → OnEpochEnd}* →
//	OnPredictStep* → OnEvaluate* → OnLogFlush* → OnCheckpointSave* → OnRunEnd
type Reporter struct {
	mu sync.Mutex

	cfg Config
	n   Notifier
	rec Recorder
	log logx.Logger

	lines *tracker

	runID   string
	runName string
	active  bool
	epoch   float64
	started time.Time
	bars    map[string]progress
	marks   map[string]time.Time
}

func New(cfg Config, n Notifier, rec Recorder, log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{
		cfg:   cfg.withDefaults(),
		n:     n,
		rec:   rec,
		log:   log,
		lines: newTracker(),
		bars:  map[string]progress{},
		marks: map[string]time.Time{},
	}
}

// Snapshot returns the current run view (zero Snapshot when idle).
func (r *Reporter) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return Snapshot{}
	}
	bar := r.bars["train"]
	return Snapshot{
		Active:     true,
		RunID:      r.runID,
		RunName:    r.runName,
		GlobalStep: bar.cur,
		MaxSteps:   bar.total,
		Epoch:      r.epoch,
		Started:    r.started,
	}
}

func (r *Reporter) OnRunStart(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	r.runID = fmt.Sprintf("%s-%d", args.RunName, now.UnixNano())
	r.runName = args.RunName
	r.active = true
	r.started = now
	r.bars["train"] = progress{cur: 0, total: state.MaxSteps}
	r.marks["run"] = now
	r.marks["epoch"] = now
	r.marks["step"] = now
	runID := r.runID
	r.mu.Unlock()

	if _, err := r.n.SendMessage(ctx, "Begin training on "+args.RunName, nil); err != nil {
		r.log.Warn("run start notice failed", logx.Err(err))
	}
	r.writeProgress(ctx, LineTrain, "train", 0)

	if r.rec != nil {
		if err := r.rec.RunStarted(ctx, runID, args.RunName, now); err != nil {
			r.log.Warn("history run start failed", logx.Err(err))
		}
	}
}

func (r *Reporter) OnEpochStart(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	r.marks["epoch"] = now
	r.marks["step"] = now
	r.epoch = state.Epoch
	r.mu.Unlock()

	// Each epoch gets a fresh train progress message; the previous one stays
	// behind as a per-epoch record.
	r.lines.drop(LineTrain)
	r.writeProgress(ctx, LineTrain, "train", 0)

	r.transient(ctx, fmt.Sprintf("Begin epoch: %.1f", state.Epoch))
}

func (r *Reporter) OnStepEnd(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	bar := r.bars["train"]
	bar.cur = state.GlobalStep
	r.bars["train"] = bar
	took := now.Sub(r.marks["step"])
	r.marks["step"] = now
	r.epoch = state.Epoch
	r.mu.Unlock()

	r.writeProgress(ctx, LineTrain, "train", took)
}

func (r *Reporter) OnEpochEnd(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	took := now.Sub(r.marks["epoch"])
	r.marks["step"] = now
	r.mu.Unlock()

	if _, err := r.n.SendMessage(ctx, "Epoch done, took "+chatfmt.Took(took), nil); err != nil {
		r.log.Warn("epoch end notice failed", logx.Err(err))
	}
}

// OnPredictStep advances the prediction progress line. total is the size of
// the evaluation set (used to initialize the bar on the first call).
func (r *Reporter) OnPredictStep(ctx context.Context, args RunArgs, state RunState, total int) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	bar, ok := r.bars["predict"]
	if !ok {
		bar = progress{cur: 0, total: total}
		r.marks["predict"] = now
	}
	bar.cur++
	r.bars["predict"] = bar
	took := now.Sub(r.marks["predict"])
	r.marks["predict"] = now
	r.mu.Unlock()

	r.writeProgress(ctx, LinePredict, "predict", took)
}

func (r *Reporter) OnEvaluate(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}

	r.mu.Lock()
	delete(r.bars, "predict")
	delete(r.marks, "predict")
	r.mu.Unlock()

	r.lines.close(ctx, r.n, LinePredict, r.cfg.PredictGrace)
	r.transient(ctx, "Evaluation done")
}

// OnLogFlush posts the flushed metrics as a structured message and records
// numeric entries into history.
func (r *Reporter) OnLogFlush(ctx context.Context, args RunArgs, state RunState, logs []notifier.KV) {
	if !state.LocalRankZero || len(logs) == 0 {
		return
	}

	embed := notifier.BuildEmbed(logs, "Results", resultsFooter(state.GlobalStep, args.RunName))
	if _, err := r.n.SendMessage(ctx, "", embed); err != nil {
		r.log.Warn("log flush notice failed", logx.Err(err))
	}

	if r.rec == nil {
		return
	}
	r.mu.Lock()
	runID := r.runID
	r.mu.Unlock()
	for _, kv := range logs {
		v, ok := toFloat(kv.Value)
		if !ok {
			continue
		}
		if err := r.rec.MetricLogged(ctx, runID, state.GlobalStep, kv.Key, v); err != nil {
			r.log.Warn("history metric failed", logx.String("key", kv.Key), logx.Err(err))
		}
	}
}

func (r *Reporter) OnCheckpointSave(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	r.transient(ctx, fmt.Sprintf("Saving checkpoint in epoch %.1f", state.Epoch))
}

func (r *Reporter) OnRunEnd(ctx context.Context, args RunArgs, state RunState) {
	if !state.LocalRankZero {
		return
	}
	now := time.Now()

	r.mu.Lock()
	bar := r.bars["train"]
	bar.cur = state.GlobalStep
	r.bars["train"] = bar
	took := now.Sub(r.marks["run"])
	runID := r.runID
	r.active = false
	r.mu.Unlock()

	r.writeProgress(ctx, LineTrain, "train", 0)
	if _, err := r.n.SendMessage(ctx, fmt.Sprintf("Finish training on %s, took %s", args.RunName, chatfmt.Took(took)), nil); err != nil {
		r.log.Warn("run end notice failed", logx.Err(err))
	}

	// The final train line stays as the run's record; the predict line goes.
	r.lines.close(ctx, r.n, LinePredict, r.cfg.PredictGrace)
	r.lines.drop(LineTrain)

	r.mu.Lock()
	delete(r.bars, "train")
	delete(r.bars, "predict")
	r.mu.Unlock()

	if r.rec != nil {
		if err := r.rec.RunFinished(ctx, runID, now); err != nil {
			r.log.Warn("history run end failed", logx.Err(err))
		}
	}
}

func (r *Reporter) writeProgress(ctx context.Context, key, label string, took time.Duration) {
	r.mu.Lock()
	bar, ok := r.bars[label]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.lines.write(ctx, r.n, key, progressLine(label, bar.cur, bar.total, took)); err != nil {
		r.log.Warn("progress write failed", logx.String("line", key), logx.Err(err))
	}
}

// transient posts a short-lived notice that deletes itself.
func (r *Reporter) transient(ctx context.Context, text string) {
	id, err := r.n.SendMessage(ctx, text, nil)
	if err != nil {
		r.log.Warn("transient notice failed", logx.Err(err))
		return
	}
	if id != "" {
		r.n.DeleteAfterDelay(ctx, id, r.cfg.TransientDelay)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
