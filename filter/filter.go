// Package filter decides which scanned entries enter the queue.
package filter

import (
	"fmt"
	"path"
	"strings"
)

// Action is the outcome of a rule.
type Action int

const (
	Keep Action = iota
	Skip
)

func (a Action) String() string {
	if a == Skip {
		return "skip"
	}
	return "keep"
}

// ParseAction maps "skip"/"keep" to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "", "keep":
		return Keep, nil
	case "skip":
		return Skip, nil
	}
	return Keep, fmt.Errorf("unknown filter action %q", s)
}

// Rule matches entries by glob pattern and optional kind and size bounds.
// Patterns containing a slash match the full path, others the base name.
type Rule struct {
	Pattern   string
	Action    Action
	DirsOnly  bool
	FilesOnly bool
	// MinSize and MaxSize apply to files only; zero means unbounded.
	MinSize  int64
	MaxSize  int64
	Priority int
}

func (r Rule) matches(uri string, size int64, isDir bool) bool {
	if r.DirsOnly && !isDir {
		return false
	}
	if r.FilesOnly && isDir {
		return false
	}
	if !isDir {
		if r.MinSize > 0 && size < r.MinSize {
			return false
		}
		if r.MaxSize > 0 && size > r.MaxSize {
			return false
		}
	}

	if r.Pattern == "" {
		return true
	}
	subject := path.Base(uri)
	if strings.Contains(r.Pattern, "/") {
		subject = uri
	}
	ok, _ := path.Match(r.Pattern, subject)
	return ok
}

// Decision is the classification of one entry.
type Decision struct {
	Action   Action
	Priority int
}

// Chain is an ordered rule list; the first matching rule decides.
// Entries matching no rule are kept with priority 0.
type Chain struct {
	rules []Rule
}

// NewChain validates the patterns and builds a chain.
func NewChain(rules ...Rule) (*Chain, error) {
	for _, r := range rules {
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", r.Pattern, err)
		}
		if r.DirsOnly && r.FilesOnly {
			return nil, fmt.Errorf("filter %q cannot be both dirs_only and files_only", r.Pattern)
		}
	}
	return &Chain{rules: append([]Rule(nil), rules...)}, nil
}

// Classify runs uri through the chain. A nil chain keeps everything.
func (c *Chain) Classify(uri string, size int64, isDir bool) Decision {
	if c == nil {
		return Decision{Action: Keep}
	}
	for _, r := range c.rules {
		if r.matches(uri, size, isDir) {
			return Decision{Action: r.Action, Priority: r.Priority}
		}
	}
	return Decision{Action: Keep}
}

// Len returns the number of rules.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}
