// Package safety flags generated commands that look destructive.
//
// The check is a best-effort pattern match. It catches a handful of well
// known disasters and nothing more; the user still reviews every command
// before it runs.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPatterns are substrings that mark a command as unsafe. They are
// matched after runs of whitespace are collapsed to single spaces.
var DefaultPatterns = []string{
	"rm -r -f /",
	"rm -rf /",
	"rm -fr /",
	"rm -rf --no-preserve-root",
	"rm -fr --no-preserve-root",
	"rm --no-preserve-root -rf ",
	"rm --no-preserve-root -fr ",
	"> /dev/sda",
	"of=/dev/sda",
	"mkfs.ext2 /dev/sda",
	"mkfs.ext3 /dev/sda",
	"mkfs.ext4 /dev/sda",
	"chmod -R 777 /",
	":(){ :|:& };:",
	"history | ",
	"format c: /q",
	"truncate -s 0",
}

var defaultExpressions = []*regexp.Regexp{
	regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|hd|nvme|disk)`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\s+/dev/`),
	regexp.MustCompile(`:\s*\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
}

// UnsafeError reports a command or value rejected by the checker.
type UnsafeError struct {
	Input   string
	Pattern string
}

func (e *UnsafeError) Error() string {
	return fmt.Sprintf("refusing unsafe input %q (matched %q)", e.Input, e.Pattern)
}

// Checker decides whether commands and placeholder values are safe.
type Checker struct {
	patterns    []string
	expressions []*regexp.Regexp
}

// New returns a Checker using DefaultPatterns plus extra.
func New(extra ...string) *Checker {
	patterns := append([]string(nil), DefaultPatterns...)
	for _, p := range extra {
		if p = normalize(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &Checker{patterns: patterns, expressions: defaultExpressions}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Check returns an *UnsafeError if command matches a known dangerous pattern.
func (c *Checker) Check(command string) error {
	norm := normalize(command)
	for _, p := range c.patterns {
		if strings.Contains(norm, p) {
			return &UnsafeError{Input: command, Pattern: p}
		}
	}
	for _, re := range c.expressions {
		if re.MatchString(norm) {
			return &UnsafeError{Input: command, Pattern: re.String()}
		}
	}
	return nil
}

// CheckValue rejects placeholder values that target the filesystem root.
func (c *Checker) CheckValue(value string) error {
	switch strings.TrimSpace(value) {
	case "/", "/*":
		return &UnsafeError{Input: value, Pattern: "root directory"}
	}
	return nil
}
