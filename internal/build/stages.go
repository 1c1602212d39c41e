package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blogsmith/blogsmith/internal/metrics"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// namedStage pairs a stage with its report/metrics name.
type namedStage struct {
	name string
	fn   Stage
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error. Warning-kind errors are recorded and execution continues.
// When a stage sets bs.Skip, the remaining stages are not run.
func runStages(ctx context.Context, bs *BuildState, recorder metrics.Recorder, stages []namedStage) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			return newCanceledStageError(st.name, ctx.Err())
		default:
		}

		start := time.Now()
		err := st.fn(ctx, bs)
		elapsed := time.Since(start)
		bs.Report.StageTimings[st.name] = elapsed
		recorder.ObserveStageDuration(st.name, elapsed)

		if err != nil {
			if se, ok := err.(*StageError); ok && se.Kind == StageErrorWarning {
				recorder.IncStageResult(st.name, metrics.ResultWarning)
				bs.Report.AddWarning(se.Error())
				slog.Warn("Build stage completed with warning", "stage", st.name, "error", se.Err)
				continue
			}
			if ctx.Err() != nil {
				recorder.IncStageResult(st.name, metrics.ResultCanceled)
				return newCanceledStageError(st.name, ctx.Err())
			}
			recorder.IncStageResult(st.name, metrics.ResultFatal)
			if _, ok := err.(*StageError); !ok {
				err = newFatalStageError(st.name, err)
			}
			return err
		}

		recorder.IncStageResult(st.name, metrics.ResultSuccess)
		slog.Debug("Build stage completed", "stage", st.name, "duration", elapsed)

		if bs.Skip {
			break
		}
	}
	return nil
}
