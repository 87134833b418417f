package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainbot/internal/app"
	"trainbot/internal/notifier"
	"trainbot/internal/reporter"
)

func main() {
	var (
		cfgPath     string
		showHistory int
		runName     string
		epochs      int
		steps       int
		evalSize    int
		stepDelay   time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")
	flag.IntVar(&showHistory, "history", 0, "print the N most recent recorded runs and exit")
	flag.StringVar(&runName, "run-name", "demo-run", "simulated run name")
	flag.IntVar(&epochs, "epochs", 2, "simulated epochs")
	flag.IntVar(&steps, "steps", 20, "simulated steps per epoch")
	flag.IntVar(&evalSize, "eval-size", 5, "simulated evaluation batches per epoch")
	flag.DurationVar(&stepDelay, "step-delay", 500*time.Millisecond, "simulated time per step")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if showHistory > 0 {
		printHistory(ctx, a, showHistory)
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	runDemo(ctx, a.Reporter(), runName, epochs, steps, evalSize, stepDelay)

	_ = a.Stop(context.Background())
}

func printHistory(ctx context.Context, a *app.App, n int) {
	runs, err := a.History().RecentRuns(ctx, n)
	if err != nil {
		fmt.Println("history:", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return
	}
	for _, r := range runs {
		state := "running"
		if !r.FinishedAt.IsZero() {
			state = "took " + r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%s  %s  (%s)\n", r.StartedAt.Format(time.DateTime), r.Name, state)
	}
}

// runDemo drives the reporter through the full lifecycle with synthetic
// metrics, exercising the stack end to end against the configured backend.
func runDemo(ctx context.Context, rep *reporter.Reporter, name string, epochs, steps, evalSize int, delay time.Duration) {
	args := reporter.RunArgs{RunName: name}
	total := epochs * steps
	state := reporter.RunState{MaxSteps: total, LocalRankZero: true}

	rep.OnRunStart(ctx, args, state)

	for epoch := 0; epoch < epochs; epoch++ {
		state.Epoch = float64(epoch)
		rep.OnEpochStart(ctx, args, state)

		for step := 0; step < steps; step++ {
			if sleep(ctx, delay) {
				rep.OnRunEnd(ctx, args, state)
				return
			}
			state.GlobalStep++
			state.Epoch = float64(epoch) + float64(step+1)/float64(steps)
			rep.OnStepEnd(ctx, args, state)
		}

		rep.OnEpochEnd(ctx, args, state)

		for i := 0; i < evalSize; i++ {
			rep.OnPredictStep(ctx, args, state, evalSize)
		}
		rep.OnEvaluate(ctx, args, state)

		loss := 2.0 / float64(state.GlobalStep)
		rep.OnLogFlush(ctx, args, state, []notifier.KV{
			{Key: "loss", Value: loss},
			{Key: "epoch", Value: state.Epoch},
			{Key: "step", Value: state.GlobalStep},
		})
		rep.OnCheckpointSave(ctx, args, state)
	}

	rep.OnRunEnd(ctx, args, state)
}

// sleep waits for d, reporting whether ctx was cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	}
}
