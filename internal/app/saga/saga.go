package saga

import (
	"context"
	"errors"
	"fmt"
)

// Compensation undoes one completed step.
type Compensation struct {
	Name string
	Undo func(ctx context.Context) error
}

// Stack collects compensations while a multi-step operation runs and unwinds them in
// reverse order when a later step fails.
type Stack struct {
	steps []Compensation
}

func (s *Stack) Push(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, Compensation{Name: name, Undo: undo})
}

// Unwind runs every compensation, last pushed first, and empties the stack.
func (s *Stack) Unwind(ctx context.Context) error {
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.Undo(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
		}
	}
	s.steps = nil
	return errors.Join(errs...)
}

// Discard forgets the compensations once the operation has succeeded.
func (s *Stack) Discard() {
	s.steps = nil
}

func (s *Stack) Len() int {
	return len(s.steps)
}
