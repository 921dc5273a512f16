package poller

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultsPage(rows ...string) string {
	return `<html><body><table class="table"><tbody class="return-trips">` +
		strings.Join(rows, "") +
		`</tbody></table></body></html>`
}

func row(key, seats string) string {
	return fmt.Sprintf(`<tr data-hourminute="%s"><td>%s</td><td>Shuttle</td><td>KTM</td><td>RM 5.00</td><td>%s</td></tr>`, key, key, seats)
}

func TestParseResults_FindsSlot(t *testing.T) {
	html := resultsPage(row("0830", "3 seats"), row("0945", " 12 seats left "))

	res, err := ParseResults(html, DefaultTarget(), "0945")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.True(t, res.Parsed)
	assert.Equal(t, 12, res.Seats)
	assert.Equal(t, "12 seats left", res.Raw)
	assert.Equal(t, []string{"0830", "0945"}, res.Seen)
}

func TestParseResults_NotFound(t *testing.T) {
	res, err := ParseResults(resultsPage(row("0945", "1")), DefaultTarget(), "0830")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, []string{"0945"}, res.Seen)
}

func TestParseResults_ExactKeyOnly(t *testing.T) {
	res, err := ParseResults(resultsPage(row("08300", "9"), row("0830", "2")), DefaultTarget(), "0830")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Seats)
}

func TestParseResults_ShortRow(t *testing.T) {
	html := resultsPage(`<tr data-hourminute="0830"><td>08:30</td><td>Full</td></tr>`)
	res, err := ParseResults(html, DefaultTarget(), "0830")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Parsed)
	assert.Contains(t, res.Raw, "Full")
}

func TestParseResults_EmptyPage(t *testing.T) {
	res, err := ParseResults("", DefaultTarget(), "0830")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Seen)
}

func TestExtractSeats(t *testing.T) {
	tests := []struct {
		text  string
		seats int
		ok    bool
	}{
		{"12 seats left", 12, true},
		{"7 seats", 7, true},
		{"Seats: 0", 0, true},
		{"７ seats", 7, true},
		{"Sold out", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			seats, ok := ExtractSeats(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.seats, seats)
		})
	}
}
