package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwindRunsInReverse(t *testing.T) {
	var order []string
	s := &Stack{}
	s.Push("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.Push("second", func(context.Context) error { order = append(order, "second"); return errors.New("gone") })
	s.Push("third", func(context.Context) error { order = append(order, "third"); return nil })

	err := s.Unwind(context.Background())
	assert.ErrorContains(t, err, "second: gone")
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Equal(t, 0, s.Len())
}

func TestDiscard(t *testing.T) {
	called := false
	s := &Stack{}
	s.Push("step", func(context.Context) error { called = true; return nil })
	s.Discard()
	assert.NoError(t, s.Unwind(context.Background()))
	assert.False(t, called)
}
