package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var ErrMalformedDecomposition = errors.New("malformed decomposition")

type DecompositionMode string

const (
	DecompositionModeSequential DecompositionMode = "sequential"
	DecompositionModeParallel   DecompositionMode = "parallel"
)

// SubTask is one unit of a decomposed task.
type SubTask struct {
	Number      int    `json:"sub_task_number"`
	Description string `json:"description"`
	Name        string `json:"name"`
}

// Decomposition is the allocator's verdict on an actor answer: either the
// answer satisfies the task, or the task should be split into sub-tasks.
type Decomposition struct {
	Satisfied bool              `json:"satisfaction_decision"`
	Reasoning string            `json:"reasoning"`
	Mode      DecompositionMode `json:"decomposition_mode,omitempty"`
	SubTasks  []SubTask         `json:"sub_tasks,omitempty"`
}

// Normalize clears decomposition fields that contradict the satisfaction
// decision and validates the mode.
func (d *Decomposition) Normalize() error {
	if d.Satisfied {
		d.Mode = ""
		d.SubTasks = nil
		return nil
	}
	switch d.Mode {
	case DecompositionModeSequential, DecompositionModeParallel:
	default:
		return fmt.Errorf("%w: unknown decomposition mode %q", ErrMalformedDecomposition, d.Mode)
	}
	if len(d.SubTasks) == 0 {
		return fmt.Errorf("%w: unsatisfied decision without sub-tasks", ErrMalformedDecomposition)
	}
	return nil
}

var (
	satisfactionPattern  = regexp.MustCompile(`\*\*Satisfaction Decision\*\*: (True|False)`)
	reasoningPattern     = regexp.MustCompile(`\*\*Reasoning\*\*: (.+)`)
	decompositionPattern = regexp.MustCompile(`\*\*Decomposition Mode\*\*: (\w+)`)
	subTaskPattern       = regexp.MustCompile(`- \*\*Sub-task (\d+)\*\*:\n\s+- \*\*Description\*\*: (.+)\n\s+- \*\*Name\*\*: (.+)`)
)

// ParseDecomposition extracts a Decomposition from the allocator's markdown
// reply format:
//
//	**Satisfaction Decision**: False
//	**Reasoning**: ...
//	**Decomposition Mode**: sequential
//	- **Sub-task 1**:
//	  - **Description**: ...
//	  - **Name**: ...
//
// It is the fallback when the model answers in markdown instead of JSON.
func ParseDecomposition(content string) (*Decomposition, error) {
	satisfaction := satisfactionPattern.FindStringSubmatch(content)
	if satisfaction == nil {
		return nil, fmt.Errorf("%w: missing satisfaction decision", ErrMalformedDecomposition)
	}

	reasoning := reasoningPattern.FindStringSubmatch(content)
	if reasoning == nil {
		return nil, fmt.Errorf("%w: missing reasoning", ErrMalformedDecomposition)
	}

	decomposition := &Decomposition{
		Satisfied: satisfaction[1] == "True",
		Reasoning: reasoning[1],
	}
	if decomposition.Satisfied {
		return decomposition, nil
	}

	mode := decompositionPattern.FindStringSubmatch(content)
	if mode == nil {
		return nil, fmt.Errorf("%w: missing decomposition mode", ErrMalformedDecomposition)
	}
	decomposition.Mode = DecompositionMode(mode[1])

	for _, match := range subTaskPattern.FindAllStringSubmatch(content, -1) {
		number, err := strconv.Atoi(match[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad sub-task number %q", ErrMalformedDecomposition, match[1])
		}
		decomposition.SubTasks = append(decomposition.SubTasks, SubTask{
			Number:      number,
			Description: match[2],
			Name:        match[3],
		})
	}

	if err := decomposition.Normalize(); err != nil {
		return nil, err
	}
	return decomposition, nil
}
