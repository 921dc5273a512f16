package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
)

// switchValue is a Chromium command-line switch. A true bool renders as a bare
// "--name".
type switchValue struct {
	name  string
	value any
}

// stabilitySwitches keep long-running headless sessions quiet and predictable.
func stabilitySwitches(o Options) []switchValue {
	switches := []switchValue{
		{"headless", o.Headless},
		{"no-sandbox", true},
		{"disable-gpu", true},
		{"disable-dev-shm-usage", true},
		{"disable-extensions", true},
		{"disable-logging", true},
		{"disable-notifications", true},
		{"disable-default-apps", true},
		{"disable-background-networking", true},
		{"disable-background-timer-throttling", true},
		{"disable-backgrounding-occluded-windows", true},
		{"disable-breakpad", true},
		{"disable-component-extensions-with-background-pages", true},
		{"disable-features", "TranslateUI"},
		{"disable-ipc-flooding-protection", true},
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"window-size", fmt.Sprintf("%d,%d", o.WindowWidth, o.WindowHeight)},
	}
	if o.UserAgent != "" {
		switches = append(switches, switchValue{"user-agent", o.UserAgent})
	}
	for _, extra := range o.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(extra, "--"), "=")
		if hasValue {
			switches = append(switches, switchValue{name, value})
		} else {
			switches = append(switches, switchValue{name, true})
		}
	}
	return switches
}

// AllocatorOptions builds the chromedp exec allocator options for a local
// browser using profileDir.
func AllocatorOptions(o Options, profileDir string) []chromedp.ExecAllocatorOption {
	o = o.withDefaults()
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	opts = append(opts, chromedp.UserDataDir(profileDir))
	for _, s := range stabilitySwitches(o) {
		opts = append(opts, chromedp.Flag(s.name, s.value))
	}
	return opts
}

// CommandLine renders the same switches as arguments for a containerized
// browser whose profile lives at profileDir.
func CommandLine(o Options, profileDir string) []string {
	o = o.withDefaults()
	var args []string
	for _, s := range stabilitySwitches(o) {
		switch v := s.value.(type) {
		case bool:
			if v {
				args = append(args, "--"+s.name)
			}
		default:
			args = append(args, fmt.Sprintf("--%s=%v", s.name, v))
		}
	}
	return append(args, "--user-data-dir="+profileDir)
}
