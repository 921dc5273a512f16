package poller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	regexp "github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

var seatsPattern = regexp.MustCompile(`\d+`)

// Results is what one search returned for the requested slot.
type Results struct {
	Found  bool
	Seen   []string
	Raw    string
	Seats  int
	Parsed bool
}

// ParseResults finds the row for slot (in HHMM form) in the results page HTML
// and extracts its seat count.
func ParseResults(html string, t Target, slot string) (Results, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Results{}, fmt.Errorf("failed to parse results page: %w", err)
	}

	var res Results
	doc.Find(t.RowSelector).Each(func(_ int, row *goquery.Selection) {
		key := strings.TrimSpace(row.AttrOr(t.SlotAttribute, ""))
		res.Seen = append(res.Seen, key)
		if res.Found || key != slot {
			return
		}

		res.Found = true
		cells := row.Find("td")
		if cells.Length() < t.SeatCell {
			res.Raw = normalizeText(row.Text())
			return
		}
		res.Raw = normalizeText(cells.Eq(t.SeatCell - 1).Text())
		res.Seats, res.Parsed = ExtractSeats(res.Raw)
	})

	return res, nil
}

// ExtractSeats returns the first integer in text, e.g. "12 seats left" -> 12.
func ExtractSeats(text string) (int, bool) {
	m := seatsPattern.FindString(norm.NFKC.String(text))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// normalizeText folds compatibility characters and collapses whitespace.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
