package commands

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/shuttlewatch/internal/job"
)

const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandWatch  = "watch"
	CommandList   = "list"
	CommandStop   = "stop"
	CommandRemove = "remove"
)

const (
	msgStopped        = "🛑 All your monitoring prompts have been stopped."
	msgNothingToStop  = "No active prompts found."
	msgNoPrompts      = "No prompts found for you."
	msgNoActive       = "✅ You have no active monitoring prompts."
	msgRemoveUsage    = "Usage: /remove <index>"
	msgRemoved        = "🗑️ Prompt removed successfully."
	msgInvalidIndex   = "Invalid index. Use /list to see active prompts."
	msgUnknownCommand = "Unknown command. Send /help for the list of commands."
	msgFailed         = "⚠️ Something went wrong, please try again."

	msgChooseOrigin     = "Choose your origin station:"
	msgChooseDate       = "📅 Select a date:"
	msgChooseTime       = "Choose time:"
	msgChoosePassengers = "How many passengers?"
	msgMenuCancelled    = "Cancelled. Send /start to pick another departure."
	msgMenuExpired      = "This menu has expired. Send /start again."
)

// HelpText lists the commands and the stations they accept.
func HelpText(cat *job.Catalogue) string {
	var b strings.Builder
	b.WriteString("🚆 Shuttle Tebrau seat watcher\n\n")
	b.WriteString("/start - pick a departure from menus\n")
	b.WriteString(WatchUsage + " - start monitoring in one line\n")
	b.WriteString("/list - show your active prompts\n")
	b.WriteString("/remove <index> - remove one prompt\n")
	b.WriteString("/stop - stop all your prompts\n")
	if cat != nil {
		b.WriteString("\nStations and departures:\n")
		for _, st := range cat.Stations {
			fmt.Fprintf(&b, "%s: %s\n", st.Name, strings.Join(st.Slots, " "))
		}
	}
	b.WriteString("\nExample: /watch JB SENTRAL 05 Mar 2026 08:45 2")
	return b.String()
}

// MonitoringSummary confirms a new prompt.
func MonitoringSummary(j job.Job) string {
	return fmt.Sprintf("🔍 Monitoring for:\nFrom: %s\nTo: %s\nDate: %s\nTime: %s\nPassengers: %d",
		j.Origin, j.Destination, j.OnwardDate(), j.Time, j.Passengers)
}

// ActiveList numbers the active prompts from 1, matching /remove positions.
func ActiveList(jobs []job.Job) string {
	if len(jobs) == 0 {
		return msgNoActive
	}
	var b strings.Builder
	b.WriteString("📋 Ongoing prompts:\n\n")
	for i, j := range jobs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, j.Summary())
	}
	return b.String()
}
