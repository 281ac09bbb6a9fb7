package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kalambet/attune/internal/coach"
	"github.com/kalambet/attune/internal/connection"
	"github.com/kalambet/attune/internal/kernel"
	"github.com/kalambet/attune/internal/onboarding"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stderr receives status lines; commands write their results to cmd.OutOrStdout.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(stderr, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printQuestion(w io.Writer, q onboarding.Question) {
	fmt.Fprintf(w, "%s\n%s\n", colorize(colorCyan, "["+q.ID+"]"), coach.FormatQuestion(q))
}

func printValidation(w io.Writer, v kernel.CoachValidation) {
	if v.CanSend {
		fmt.Fprintf(w, "%s (score %d)\n", colorize(colorGreen, "can send"), v.Verdict.Score)
	} else {
		fmt.Fprintf(w, "%s (score %d)\n", colorize(colorRed, "blocked"), v.Verdict.Score)
	}
	for _, f := range v.Verdict.Violations {
		fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorRed, "hard"), f.RuleID, f.Violation)
	}
	for _, f := range v.Verdict.TenetViolations {
		fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorRed, "tenet"), f.RuleID, f.Violation)
	}
	for _, f := range v.Verdict.Suggestions {
		fmt.Fprintf(w, "  %s %s: %s\n", colorize(colorYellow, "soft"), f.RuleID, f.Violation)
	}
	for _, m := range v.Modifications {
		fmt.Fprintf(w, "  -> %s\n", m)
	}
}

func printHealth(h connection.Health) {
	printStatus("Isolation", "%s", h.Isolation)
	printStatus("External support", "%t", h.HasExternalSupport)
	printStatus("Isolation signals", "%d", len(h.IsolationSignals))
	printStatus("Dependency signals", "%d", len(h.DependencySignals))
	for _, m := range []struct {
		label string
		at    *time.Time
	}{
		{"Last friend mention", h.LastFriendMention},
		{"Last family mention", h.LastFamilyMention},
		{"Last professional mention", h.LastProfessionalMention},
	} {
		if m.at != nil {
			printStatus(m.label, "%s", m.at.Local().Format("2006-01-02 15:04"))
		}
	}
}
