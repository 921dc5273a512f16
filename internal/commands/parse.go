package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/job"
)

// WatchUsage describes the /watch arguments.
const WatchUsage = "/watch <origin> <DD> <MMM> <YYYY> <HH:MM> <passengers>"

// ParseWatchArgs builds a job from "<origin> <DD> <MMM> <YYYY> <HH:MM> <pax>".
// The origin may contain spaces, so the fixed fields are read from the end.
func ParseWatchArgs(cat *job.Catalogue, args []string) (job.Job, error) {
	if len(args) < 6 {
		return job.Job{}, fmt.Errorf("usage: %s", WatchUsage)
	}
	n := len(args)
	origin := strings.Join(args[:n-5], " ")
	dateText := strings.Join(args[n-5:n-2], " ")
	slot := args[n-2]

	date, err := time.Parse("02 Jan 2006", normalizeDate(dateText))
	if err != nil {
		return job.Job{}, &job.ValidationError{Field: "date", Reason: fmt.Sprintf("%q is not DD MMM YYYY", dateText)}
	}
	passengers, err := strconv.Atoi(args[n-1])
	if err != nil {
		return job.Job{}, &job.ValidationError{Field: "passengers", Reason: fmt.Sprintf("%q is not a number", args[n-1])}
	}
	return job.New(cat, origin, date, slot, passengers)
}

// normalizeDate accepts "5 mar 2026" as well as "05 Mar 2026".
func normalizeDate(s string) string {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return s
	}
	if len(parts[0]) == 1 {
		parts[0] = "0" + parts[0]
	}
	if m := parts[1]; len(m) == 3 {
		parts[1] = strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
	}
	return strings.Join(parts, " ")
}

// splitCommand returns the command name without the leading slash or a
// "@botname" suffix, and its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:]
}
