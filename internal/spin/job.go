package spin

import (
	"fmt"
	"time"

	"liminal/internal/types"
)

// Each state has exactly one successor; Complete has none.
var transitions = map[types.SpinState]types.SpinState{
	types.SpinStateCreated:    types.SpinStateTicking,
	types.SpinStateTicking:    types.SpinStateFinalizing,
	types.SpinStateFinalizing: types.SpinStateComplete,
}

// job is the state of one spin. It is owned by the goroutine running it;
// everyone else reads the copy kept in the active table.
type job struct {
	id         string
	options    []string
	mode       string
	totalTicks int
	state      types.SpinState
	startedAt  time.Time
}

func newJob(id string, req types.SpinRequest, totalTicks int, now time.Time) *job {
	return &job{
		id:         id,
		options:    append([]string(nil), req.Options...),
		mode:       req.Mode,
		totalTicks: totalTicks,
		state:      types.SpinStateCreated,
		startedAt:  now,
	}
}

func (j *job) advance(to types.SpinState) {
	if transitions[j.state] != to {
		panic(fmt.Sprintf("spin %s: illegal transition %s -> %s", j.id, j.state, to))
	}
	j.state = to
}

func (j *job) highlight(tick int) int {
	return tick % len(j.options)
}

func (j *job) progress(tick int) float64 {
	return float64(tick) / float64(j.totalTicks)
}

// pick chooses the result. An out-of-range draw yields "" so a spin always
// completes with some answer.
func (j *job) pick(intn func(int) int) string {
	if len(j.options) == 0 {
		return ""
	}
	idx := intn(len(j.options))
	if idx < 0 || idx >= len(j.options) {
		return ""
	}
	return j.options[idx]
}

func (j *job) initial() types.ActiveSpin {
	return types.ActiveSpin{
		ID:         j.id,
		Options:    j.options,
		Mode:       j.mode,
		TotalTicks: j.totalTicks,
		State:      j.state,
		StartedAt:  j.startedAt,
	}
}
