package reviews

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	r, err := Submit(SubmitParams{ID: "r1", BookingID: "b1", AuthorID: "u1", ProviderID: "p1", Rating: 5, Text: "  serene  ", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "serene", r.Text)
	assert.Equal(t, []string{"review.submitted"}, r.Names())
}

func TestSubmitRejects(t *testing.T) {
	_, err := Submit(SubmitParams{Rating: 0})
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = Submit(SubmitParams{Rating: 4, Text: strings.Repeat("a", maxTextLength+1)})
	assert.ErrorIs(t, err, ErrTextTooLong)
}
