// Package hints loads user-written notes about local tools and picks the ones
// relevant to a request, so the model learns about commands it has never
// seen.
//
// A hint is a markdown file in ~/.calais/hints with optional YAML frontmatter:
//
//	---
//	tool: deployctl
//	aliases: [dctl]
//	keywords: [deploy, release, rollout]
//	priority: high
//	---
//	deployctl ships builds to the fleet.
//
//	User: "roll back the last release"
//	Command: deployctl rollback --last
package hints

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Doc is one parsed hint document.
type Doc struct {
	Path       string
	Tool       string
	Aliases    []string
	Keywords   []string
	Categories []string
	Priority   string
	Content    string
	Examples   []Example
	UpdatedAt  time.Time
}

// Example pairs a request with the command that answers it.
type Example struct {
	Request string
	Command string
}

// Set holds loaded hint documents.
type Set struct {
	docs []Doc
	log  *zap.Logger
}

// NewSet wraps already parsed documents.
func NewSet(docs []Doc, log *zap.Logger) *Set {
	if log == nil {
		log = zap.NewNop()
	}
	return &Set{docs: docs, log: log.Named("hints")}
}

// Load parses every *.md file in dir. A missing directory yields an empty
// set. Files that fail to parse are logged and skipped, as are README.md
// and files starting with an underscore.
func Load(dir string, log *zap.Logger) (*Set, error) {
	s := NewSet(nil, log)

	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list hints: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		base := filepath.Base(file)
		if strings.EqualFold(base, "README.md") || strings.HasPrefix(base, "_") {
			s.log.Debug("skipping meta file", zap.String("file", base))
			continue
		}
		doc, err := ParseFile(file)
		if err != nil {
			s.log.Warn("skipping unreadable hint", zap.String("file", base), zap.Error(err))
			continue
		}
		s.docs = append(s.docs, *doc)
	}

	s.log.Debug("loaded hints", zap.String("dir", dir), zap.Int("count", len(s.docs)))
	return s, nil
}

// Docs returns a copy of all documents.
func (s *Set) Docs() []Doc {
	return append([]Doc(nil), s.docs...)
}

// Len returns the number of documents.
func (s *Set) Len() int { return len(s.docs) }

// Render formats documents for inclusion in a system prompt.
func Render(docs []Doc) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The user has documented these local tools. Prefer them when they fit the request.\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "\n## %s\n", d.Tool)
		if len(d.Aliases) > 0 {
			fmt.Fprintf(&b, "Aliases: %s\n", strings.Join(d.Aliases, ", "))
		}
		if d.Content != "" {
			b.WriteString(d.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}
