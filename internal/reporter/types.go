package reporter

import (
	"context"
	"time"

	"trainbot/internal/transport"
)

// Logical line keys.
const (
	LineTrain   = "train-progress"
	LinePredict = "predict-progress"
)

// Config controls message lifetimes.
type Config struct {
	// TransientDelay is how long throwaway notices (epoch begin, checkpoint
	// saved, evaluation done) stay before scheduled deletion.
	TransientDelay time.Duration
	// PredictGrace is the grace delay before the prediction progress line is
	// deleted after evaluation.
	PredictGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.TransientDelay <= 0 {
		c.TransientDelay = 5 * time.Second
	}
	if c.PredictGrace <= 0 {
		c.PredictGrace = 10 * time.Second
	}
	return c
}

// RunArgs is the read-only snapshot of run arguments each hook receives.
type RunArgs struct {
	RunName string
}

// RunState is the read-only snapshot of trainer state each hook receives.
// Only the process with LocalRankZero set is expected to report.
type RunState struct {
	GlobalStep    int
	MaxSteps      int
	Epoch         float64
	LocalRankZero bool
}

// RunControl is the mutable run-control object supplied by the driver.
// The reporter never modifies it.
type RunControl struct {
	ShouldStop bool
}

// Notifier is the slice of the notifier client the reporter needs.
type Notifier interface {
	SendMessage(ctx context.Context, text string, embed *transport.Embed) (string, error)
	UpdateOrSend(ctx context.Context, messageID string, p transport.Patch) (string, error)
	DeleteAfterDelay(ctx context.Context, messageID string, delay time.Duration) bool
}

// Recorder persists run history. Optional; a nil Recorder disables it.
type Recorder interface {
	RunStarted(ctx context.Context, runID, name string, at time.Time) error
	MetricLogged(ctx context.Context, runID string, step int, key string, value float64) error
	RunFinished(ctx context.Context, runID string, at time.Time) error
}

// Snapshot is the reporter's current view of the run, used by the heartbeat.
type Snapshot struct {
	Active     bool
	RunID      string
	RunName    string
	GlobalStep int
	MaxSteps   int
	Epoch      float64
	Started    time.Time
}
