// Package cli provides shared formatting helpers for CLI output.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// ANSI color constants.
const (
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Red     = "\033[31m"
	Cyan    = "\033[36m"
	DimCyan = "\033[2;36m"
	Dim     = "\033[2m"
	Bold    = "\033[1m"
	Reset   = "\033[0m"
)

// Box width is the inner content width (between the border characters).
const boxWidth = 40

// Margin is the left indent for all branded output.
const margin = "  "

// ShortenHome replaces $HOME prefix with ~.
func ShortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// FormatNumber adds comma separators (1234 -> "1,234").
func FormatNumber(n int) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return FormatNumber(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

// Banner prints the convsearch wordmark and tagline. Used by `convsearch init`.
func Banner(version string) {
	fmt.Println()
	fmt.Printf("  %s%s┌─┐┌─┐┌┐┌┬  ┬┌─┐┌─┐┌─┐┌─┐┬─┐┌─┐┬ ┬%s\n", Bold, Cyan, Reset)
	fmt.Printf("  %s%s│  │ ││││└┐┌┘└─┐├┤ ├─┤├┬┘│  ├─┤└┬┘%s\n", Bold, Cyan, Reset)
	fmt.Printf("  %s%s└─┘└─┘┘└┘ └┘ └─┘└─┘┴ ┴┴└─└─┘┴ ┴ ┴ %s\n", Bold, Cyan, Reset)
	fmt.Println()
	fmt.Printf("  %sEvery conversation starts from zero.%s %s%sNot anymore.%s\n",
		Dim, Reset, Bold, Cyan, Reset)
	fmt.Println()
	fmt.Printf("  %sconvsearch%s %s— searchable memory for your AI sessions v%s%s\n",
		Bold, Reset, Dim, version, Reset)
}

// Header prints a small heavy-border box with a title. Used by `convsearch doctor`.
func Header(title string) {
	fmt.Println()
	heavyTop := margin + "┏" + strings.Repeat("━", boxWidth) + "┓"
	heavyBottom := margin + "┗" + strings.Repeat("━", boxWidth) + "┛"

	content := "  " + title
	padded := padRight(content, boxWidth)

	fmt.Printf("%s%s%s\n", Cyan, heavyTop, Reset)
	fmt.Printf("%s%s┃%s┃%s\n", Cyan, margin, padded, Reset)
	fmt.Printf("%s%s%s\n", Cyan, heavyBottom, Reset)
}

// Section prints a section divider line: ── Name ─────────────────
func Section(name string) {
	prefix := "── " + name + " "
	remaining := boxWidth + 2 - runeLen(prefix)
	if remaining < 0 {
		remaining = 0
	}
	rule := prefix + strings.Repeat("─", remaining)
	fmt.Printf("\n%s%s%s%s%s\n\n", margin, Cyan, rule, Reset, "")
}

// Box prints a light-border box around content lines.
func Box(lines []string) {
	lightTop := margin + "┌" + strings.Repeat("─", boxWidth) + "┐"
	lightBottom := margin + "└" + strings.Repeat("─", boxWidth) + "┘"

	fmt.Println()
	fmt.Println(lightTop)
	for _, line := range lines {
		content := "  " + line
		padded := padRight(content, boxWidth)
		fmt.Printf("%s│%s│\n", margin, padded)
	}
	fmt.Println(lightBottom)
}

// Footer prints the branded footer in dim text.
func Footer() {
	fmt.Printf("\n%s%sgithub.com/sgx-labs/convsearch%s\n\n", margin, Dim, Reset)
}

// padRight pads s with spaces to exactly width characters.
// If s is longer than width, it is truncated.
func padRight(s string, width int) string {
	n := runeLen(s)
	if n >= width {
		r := []rune(s)
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-n)
}

// runeLen counts the display width in runes.
func runeLen(s string) int {
	return len([]rune(s))
}

// --- Match display ---

// MatchedMessage is one message a search command is about to print, with
// enough detail to render either the compact one-liner or the verbose box.
type MatchedMessage struct {
	Title      string   // conversation title (or path) the message belongs to
	Chars      int      // message text length, shown in the verbose box
	Included   bool     // whether it survived the char budget trim
	HighConf   bool     // high confidence = ✦, low = ✧
	MatchTerms []string // query terms that matched this message
}

// matchVerbs are rotated for some variety in the one-line summary.
var matchVerbs = []string{
	"matched", "turned up", "surfaced", "found", "retrieved",
}

// matchVerb returns a deterministic-per-process verb so repeated calls in
// one run stay consistent.
func matchVerb() int {
	return os.Getpid() % len(matchVerbs)
}

// MatchSummary prints the single-line compact result summary.
// Example: ✦ convsearch matched 3 of 847 messages
func MatchSummary(included, total int) {
	fmt.Fprintf(os.Stderr, "%s✦ %sconvsearch%s %s%s %d of %d messages%s\n",
		Cyan, Cyan, Reset, Dim, matchVerbs[matchVerb()], included, total, Reset)
}

// NoMatches prints the empty-result state.
// Example: ✦ convsearch searched 847 messages — nothing matched
func NoMatches(total int) {
	fmt.Fprintf(os.Stderr, "%s✦ %sconvsearch%s %ssearched %d messages — nothing matched%s\n",
		Cyan, Cyan, Reset, Dim, total, Reset)
}

// MatchesVerbose prints matched messages using the boxed result format.
func MatchesVerbose(matches []MatchedMessage, totalMessages int) {
	matchesBox(matches, totalMessages)
}

// matchesBox prints the fancy Unicode box format for a search result set.
func matchesBox(matches []MatchedMessage, totalMessages int) {
	var included, found int
	for _, m := range matches {
		if m.Included {
			included++
		}
		found++
	}

	verb := matchVerbs[matchVerb()]
	width := 71

	headerLeft := fmt.Sprintf("─ convsearch %s%s%s ", Dim, verb, Cyan)
	headerRight := fmt.Sprintf(" kept %d of %d ─", included, found)
	headerLeftLen := 14 + len(verb)
	headerRightLen := runeLen(headerRight)
	headerPad := width - headerLeftLen - headerRightLen
	if headerPad < 0 {
		headerPad = 0
	}

	fmt.Fprintf(os.Stderr, "%s╭%s%s%s%s╮%s\n",
		Cyan, headerLeft, strings.Repeat("─", headerPad), headerRight, Cyan, Reset)
	fmt.Fprintf(os.Stderr, "%s│%s│%s\n", Cyan, strings.Repeat(" ", width), Reset)

	fmt.Fprintf(os.Stderr, "%s│   ✓ Included%s│%s\n",
		Cyan, strings.Repeat(" ", width-13), Reset)

	for _, m := range matches {
		if !m.Included {
			continue
		}
		spark := "✦"
		color := Cyan
		if !m.HighConf {
			spark = "✧"
			color = DimCyan
		}

		titleLine := fmt.Sprintf("      %s %s", spark, m.Title)
		charStr := fmt.Sprintf("%d chars", m.Chars)
		pad := width - runeLen(titleLine) - runeLen(charStr) - 2
		if pad < 1 {
			pad = 1
		}
		fmt.Fprintf(os.Stderr, "%s│%s%s%s%s%s  │%s\n",
			Cyan, color, titleLine, strings.Repeat(" ", pad), charStr, Cyan, Reset)

		if len(m.MatchTerms) > 0 {
			matchLine := fmt.Sprintf("        ↳ matched: %s", strings.Join(quoteTerms(m.MatchTerms), ", "))
			if runeLen(matchLine) > width-4 {
				matchLine = matchLine[:width-7] + "..."
			}
			pad := width - runeLen(matchLine) - 1
			if pad < 0 {
				pad = 0
			}
			fmt.Fprintf(os.Stderr, "%s│%s%s%s%s│%s\n",
				Cyan, Dim, matchLine, Reset+Cyan, strings.Repeat(" ", pad), Reset)
		}
	}

	var excluded []MatchedMessage
	for _, m := range matches {
		if !m.Included {
			excluded = append(excluded, m)
		}
	}

	if len(excluded) > 0 {
		fmt.Fprintf(os.Stderr, "%s│%s│%s\n", Cyan, strings.Repeat(" ", width), Reset)
		fmt.Fprintf(os.Stderr, "%s│   ⊘ Also found%s│%s\n",
			Cyan, strings.Repeat(" ", width-15), Reset)

		for _, m := range excluded {
			titleLine := fmt.Sprintf("      ✧ %s", m.Title)
			pad := width - runeLen(titleLine) - 1
			if pad < 0 {
				pad = 0
			}
			fmt.Fprintf(os.Stderr, "%s│%s%s%s%s│%s\n",
				Cyan, DimCyan, titleLine, strings.Repeat(" ", pad), Cyan, Reset)
		}
	}

	fmt.Fprintf(os.Stderr, "%s│%s│%s\n", Cyan, strings.Repeat(" ", width), Reset)
	footerRight := "convsearch search --json · convsearch search --verbose"
	footerPad := width - runeLen(footerRight) - 1
	if footerPad < 0 {
		footerPad = 0
	}
	fmt.Fprintf(os.Stderr, "%s│%s%s%s │%s\n",
		Cyan, strings.Repeat(" ", footerPad), Dim, footerRight, Reset)
	fmt.Fprintf(os.Stderr, "%s╰%s╯%s\n", Cyan, strings.Repeat("─", width), Reset)
}

// quoteTerms wraps each term in quotes.
func quoteTerms(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = fmt.Sprintf("\"%s\"", t)
	}
	return out
}
