// Package rewrite applies ordered, guarded text-transformation rules to
// markup documents. Rules are data evaluated by a single interpreter loop;
// a guard that reports "already applied" makes every rule idempotent.
package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// ActionKind selects what a rule does when its guard is false.
type ActionKind string

const (
	ActionReplace        ActionKind = "replace"
	ActionRemove         ActionKind = "remove"
	ActionInsertIfAbsent ActionKind = "insertIfAbsent"
)

// Position places inserted text relative to the anchor.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
)

// Matcher finds and replaces a pattern in raw document text. Matching is
// textual, not structural, and may hit inside comments or string literals.
type Matcher interface {
	Find(text string) (start, end int, ok bool)
	Contains(text string) bool
	ReplaceAll(text, replacement string) string
	String() string
}

type literalMatcher struct {
	s string
}

// Literal matches s exactly.
func Literal(s string) Matcher { return literalMatcher{s: s} }

func (m literalMatcher) Find(text string) (int, int, bool) {
	i := strings.Index(text, m.s)
	if i < 0 || m.s == "" {
		return 0, 0, false
	}
	return i, i + len(m.s), true
}

func (m literalMatcher) Contains(text string) bool {
	return m.s != "" && strings.Contains(text, m.s)
}

func (m literalMatcher) ReplaceAll(text, replacement string) string {
	if m.s == "" {
		return text
	}
	return strings.ReplaceAll(text, m.s, replacement)
}

func (m literalMatcher) String() string { return m.s }

type regexMatcher struct {
	re *regexp.Regexp
}

// Regex compiles pattern as an RE2 expression. Replacements may use $1-style
// group references.
func Regex(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return regexMatcher{re: re}, nil
}

// MustRegex is Regex for patterns known at compile time.
func MustRegex(pattern string) Matcher {
	m, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m regexMatcher) Find(text string) (int, int, bool) {
	loc := m.re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

func (m regexMatcher) Contains(text string) bool { return m.re.MatchString(text) }

func (m regexMatcher) ReplaceAll(text, replacement string) string {
	return m.re.ReplaceAllString(text, replacement)
}

func (m regexMatcher) String() string { return m.re.String() }

// Guard reports whether a rule is already satisfied by text. Guards must be
// pure functions of the text.
type Guard func(text string) bool

// Present is a guard that holds once marker appears in the text.
func Present(marker Matcher) Guard {
	return func(text string) bool { return marker.Contains(text) }
}

// Absent is a guard that holds while m does not match.
func Absent(m Matcher) Guard {
	return func(text string) bool { return !m.Contains(text) }
}

// Action is what a rule does when its guard is false.
type Action struct {
	Kind        ActionKind
	Replacement string   // replace
	Text        string   // insertIfAbsent
	Position    Position // insertIfAbsent, relative to the rule's matcher
}

// Rule is one transformation. For insertIfAbsent the Matcher is the anchor.
type Rule struct {
	ID      string
	Matcher Matcher
	Guard   Guard
	Action  Action
}

// Replace builds a replace rule guarded by the presence of the replacement.
func Replace(id string, m Matcher, replacement string) Rule {
	r := Rule{ID: id, Matcher: m, Action: Action{Kind: ActionReplace, Replacement: replacement}}
	r.Guard = r.defaultGuard()
	return r
}

// Remove builds a rule deleting every match.
func Remove(id string, m Matcher) Rule {
	r := Rule{ID: id, Matcher: m, Action: Action{Kind: ActionRemove}}
	r.Guard = r.defaultGuard()
	return r
}

// InsertIfAbsent builds a rule inserting text next to the first anchor match,
// guarded by the presence of text itself.
func InsertIfAbsent(id string, anchor Matcher, pos Position, text string) Rule {
	r := Rule{ID: id, Matcher: anchor, Action: Action{Kind: ActionInsertIfAbsent, Text: text, Position: pos}}
	r.Guard = r.defaultGuard()
	return r
}

// WithGuard returns a copy of r using g.
func (r Rule) WithGuard(g Guard) Rule {
	r.Guard = g
	return r
}

func (r Rule) defaultGuard() Guard {
	switch r.Action.Kind {
	case ActionReplace:
		m := r.Matcher
		repl := r.Action.Replacement
		_, literal := m.(literalMatcher)
		return func(text string) bool {
			if !m.Contains(text) {
				return true
			}
			// A literal replacement is only checkable when it holds no group references.
			return repl != "" && (literal || !strings.Contains(repl, "$")) && strings.Contains(text, repl)
		}
	case ActionInsertIfAbsent:
		return Present(Literal(r.Action.Text))
	default:
		return Absent(r.Matcher)
	}
}

// Validate reports structural problems with r.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("rule has no id")
	}
	if r.Matcher == nil {
		return fmt.Errorf("rule %s has no matcher", r.ID)
	}
	switch r.Action.Kind {
	case ActionReplace:
		// The default guard cannot tell a group-expanded replacement apart
		// from text still waiting to be rewritten.
		if _, literal := r.Matcher.(literalMatcher); !literal && r.Guard == nil && strings.Contains(r.Action.Replacement, "$") {
			return fmt.Errorf("rule %s: regex replacement with group references needs a guard", r.ID)
		}
	case ActionRemove:
	case ActionInsertIfAbsent:
		if r.Action.Text == "" {
			return fmt.Errorf("rule %s inserts empty text", r.ID)
		}
		if r.Action.Position != Before && r.Action.Position != After {
			return fmt.Errorf("rule %s has invalid position %q", r.ID, r.Action.Position)
		}
	default:
		return fmt.Errorf("rule %s has unknown action %q", r.ID, r.Action.Kind)
	}
	return nil
}

// Satisfied evaluates the guard. A rule without a guard uses its default.
func (r Rule) Satisfied(text string) bool {
	if r.Guard == nil {
		return r.defaultGuard()(text)
	}
	return r.Guard(text)
}

// Apply performs the action unconditionally and returns the new text.
func (r Rule) Apply(text string) string {
	switch r.Action.Kind {
	case ActionReplace:
		return r.Matcher.ReplaceAll(text, r.Action.Replacement)
	case ActionRemove:
		return r.Matcher.ReplaceAll(text, "")
	case ActionInsertIfAbsent:
		start, end, ok := r.Matcher.Find(text)
		if !ok {
			return text
		}
		at := end
		if r.Action.Position == Before {
			at = start
		}
		return text[:at] + r.Action.Text + text[at:]
	}
	return text
}

// ApplyRules runs every rule over text in order and returns the result with
// the ids of the rules that changed it.
func ApplyRules(text string, rules []Rule) (string, []string) {
	var applied []string
	for _, r := range rules {
		if r.Satisfied(text) {
			continue
		}
		next := r.Apply(text)
		if next == text {
			continue
		}
		text = next
		applied = append(applied, r.ID)
	}
	return text, applied
}
