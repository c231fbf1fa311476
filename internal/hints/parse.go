package hints

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is the YAML header of a hint document.
type frontmatter struct {
	Tool       string   `yaml:"tool"`
	Command    string   `yaml:"command"` // older name for tool
	Aliases    []string `yaml:"aliases"`
	Keywords   []string `yaml:"keywords"`
	Categories []string `yaml:"categories"`
	Priority   string   `yaml:"priority"`
}

var (
	errEmpty       = errors.New("empty file")
	errUnclosed    = errors.New("unclosed frontmatter")
	requestLine    = regexp.MustCompile(`(?i)^(?:user|request):\s*["'](.+?)["']`)
	commandLine    = regexp.MustCompile(`(?i)^command:\s*(.+)`)
	frontmatterSep = "---"
)

// ParseFile reads one markdown hint document.
func ParseFile(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hint: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat hint: %w", err)
	}

	doc, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	doc.Path = path
	doc.UpdatedAt = info.ModTime()
	if doc.Tool == "" {
		doc.Tool = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

// Parse splits a document into its frontmatter and body.
func Parse(text string) (*Doc, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmpty
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var fm frontmatter
	body := lines
	if strings.TrimSpace(lines[0]) == frontmatterSep {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == frontmatterSep {
				end = i
				break
			}
		}
		if end == -1 {
			return nil, errUnclosed
		}
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		body = lines[end+1:]
	}

	tool := fm.Tool
	if tool == "" {
		tool = fm.Command
	}
	content := strings.TrimSpace(strings.Join(body, "\n"))
	return &Doc{
		Tool:       tool,
		Aliases:    fm.Aliases,
		Keywords:   fm.Keywords,
		Categories: fm.Categories,
		Priority:   strings.ToLower(fm.Priority),
		Content:    content,
		Examples:   parseExamples(body),
	}, nil
}

// parseExamples pairs `User: "..."` lines with the `Command: ...` line that
// follows them.
func parseExamples(lines []string) []Example {
	var out []Example
	var request string
	for _, line := range lines {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if m := requestLine.FindStringSubmatch(line); m != nil {
			request = m[1]
			continue
		}
		if request == "" {
			continue
		}
		if m := commandLine.FindStringSubmatch(line); m != nil {
			out = append(out, Example{
				Request: request,
				Command: strings.Trim(strings.TrimSpace(m[1]), "`"),
			})
			request = ""
		}
	}
	return out
}
