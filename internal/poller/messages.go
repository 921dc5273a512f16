package poller

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/shuttlewatch/internal/job"
)

// Notification kinds, used as metric labels.
const (
	KindSuccess    = "success"
	KindShortfall  = "shortfall"
	KindNotFound   = "not_found"
	KindUnexpected = "unexpected_format"
	KindTimeout    = "timeout"
)

func successText(j job.Job, seats int) string {
	return fmt.Sprintf("✅ Train on %s at %s → %d seats.", j.OnwardDate(), j.Time, seats)
}

func shortfallText(j job.Job, seats int) string {
	return fmt.Sprintf("🔄 Train on %s at %s → %d seats, need %d.", j.OnwardDate(), j.Time, seats, j.Passengers)
}

func notFoundText(j job.Job, seen []string) string {
	return fmt.Sprintf("❌ Train at %s not found. Seen: [%s]", j.Time, strings.Join(seen, ", "))
}

func unexpectedText(raw string) string {
	return fmt.Sprintf("⚠️ Unexpected format: “%s”", raw)
}

func timeoutText(attempt int) string {
	if attempt <= 1 {
		return "⚠️ Timeout loading train list. Retrying."
	}
	return fmt.Sprintf("⚠️ Timeout loading train list. Retrying (attempt %d).", attempt)
}
