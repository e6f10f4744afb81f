package executor

import "github.com/itsneelabh/subagentpool/core"

// ExecutionMode is the caller-supplied hint for how a batch of tasks
// should run.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// PolicyDecision is the outcome of resolving a mode hint against a set of
// tasks.
type PolicyDecision struct {
	// Mode is the mode to actually execute under.
	Mode ExecutionMode

	// Rewritten is true when the policy overrode a parallel request to
	// sequential because a task demanded it; the caller must be told to
	// reinvoke the tool in sequential mode rather than have it run here.
	Rewritten bool
}

// ResolveMode implements the Sequential/Parallel/sequential-when-repeated
// rules. Sequential with exactly one task runs directly; Sequential with
// more than one task is rejected; Parallel with any
// sequential_when_repeated task is rewritten to Sequential instead of
// executed.
func ResolveMode(tasks []core.Task, hint ExecutionMode) (PolicyDecision, error) {
	mode := hint
	if mode == "" {
		mode = ModeSequential
	}

	switch mode {
	case ModeSequential:
		if len(tasks) != 1 {
			return PolicyDecision{}, &core.FrameworkError{
				Op:      "ResolveMode",
				Kind:    "validation",
				Message: "Sequential execution mode requires exactly one task.",
			}
		}
		return PolicyDecision{Mode: ModeSequential}, nil

	case ModeParallel:
		for _, t := range tasks {
			if seq, ok := t.SequentialWhenRepeated(); ok && seq {
				return PolicyDecision{Mode: ModeSequential, Rewritten: true}, nil
			}
		}
		return PolicyDecision{Mode: ModeParallel}, nil

	default:
		return PolicyDecision{}, &core.FrameworkError{
			Op:      "ResolveMode",
			Kind:    "validation",
			Message: "unknown execution_mode: " + string(mode),
		}
	}
}
