package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
)

// next lists the only forward transition out of each non-terminal state.
// StateFailed is reachable from every non-terminal state.
var next = map[constants.State]constants.State{
	constants.StateReceived:       constants.StateFormatDetected,
	constants.StateFormatDetected: constants.StateTextExtracted,
	constants.StateTextExtracted:  constants.StateNormalized,
	constants.StateNormalized:     constants.StateAnalyzed,
	constants.StateAnalyzed:       constants.StateCompleted,
}

// CanTransition reports whether a request may move from one state to another.
func CanTransition(from, to constants.State) bool {
	if from.Terminal() {
		return false
	}
	return to == constants.StateFailed || next[from] == to
}

// run tracks one request through the state machine and logs every move.
type run struct {
	state   constants.State
	started time.Time
	stageAt time.Time
	log     *slog.Logger
}

func newRun(log *slog.Logger) *run {
	now := time.Now()
	r := &run{state: constants.StateReceived, started: now, stageAt: now, log: log}
	log.Info("pipeline.transition", "to", r.state)
	return r
}

func (r *run) advance(to constants.State, attrs ...any) error {
	if !CanTransition(r.state, to) {
		return common.NewAppError(common.CodeInternal, fmt.Sprintf("illegal transition %s -> %s", r.state, to), common.ErrInternal)
	}
	now := time.Now()
	args := append([]any{
		"from", r.state,
		"to", to,
		"stage_ms", now.Sub(r.stageAt).Milliseconds(),
		"elapsed_ms", now.Sub(r.started).Milliseconds(),
	}, attrs...)
	r.log.Info("pipeline.transition", args...)
	r.state = to
	r.stageAt = now
	return nil
}

// fail moves the run to Failed and returns err for the caller.
func (r *run) fail(err error) error {
	from := r.state
	r.state = constants.StateFailed
	r.log.Warn("pipeline.failed",
		"from", from,
		"code", common.CodeOf(err),
		"error", err,
		"elapsed_ms", time.Since(r.started).Milliseconds(),
	)
	return err
}
