// Package phrasing rewrites a transcript of sign labels into the sentence
// that gets spoken. Rules come from a plain text file, one per line:
//
//	Good Morning => Good morning,
//	s/\bthank you\b/thanks/gi
//
// Literal rules match whole words, ignoring case. Regex rules use Go RE2
// syntax with optional flags g (every match), i (ignore case), m and s.
package phrasing

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultIterationLimit = 30

// ErrNotConverged is returned when the regex rules keep rewriting the text
// after the iteration limit.
var ErrNotConverged = errors.New("phrasing rules did not converge")

// ParseError locates a malformed line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Rules is an ordered, immutable rule set.
type Rules struct {
	rules   []rule
	regexes int
	limit   int
}

type rule struct {
	re      *regexp.Regexp
	repl    string
	literal bool
	global  bool
}

// Load reads rules from path. A missing file or empty path yields an empty
// rule set.
func Load(path string, limit int) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return &Rules{limit: normalizeLimit(limit)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Rules{limit: normalizeLimit(limit)}, nil
		}
		return nil, fmt.Errorf("open phrasing rules %q: %w", path, err)
	}
	defer f.Close()

	rules, err := Parse(f, limit)
	if err != nil {
		return nil, fmt.Errorf("phrasing rules %q: %w", path, err)
	}
	return rules, nil
}

// Parse reads rules from r. Blank lines and lines starting with # are skipped.
func Parse(r io.Reader, limit int) (*Rules, error) {
	out := &Rules{limit: normalizeLimit(limit)}

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parsed, err := parseLine(line)
		if err != nil {
			return nil, &ParseError{Line: n, Err: err}
		}
		out.rules = append(out.rules, parsed)
		if !parsed.literal {
			out.regexes++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Rules) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Apply runs every rule in order. Literal rules run in the first pass only,
// so a replacement may repeat its own source phrase. Regex rules repeat until
// a pass changes nothing.
func (p *Rules) Apply(text string) (string, error) {
	if p.Len() == 0 {
		return text, nil
	}

	for i := 0; i < p.limit; i++ {
		changed := false
		for _, r := range p.rules {
			if r.literal && i > 0 {
				continue
			}
			if next, ok := r.apply(text); ok {
				text = next
				changed = true
			}
		}
		if !changed || p.regexes == 0 {
			return collapseSpaces(text), nil
		}
	}
	return collapseSpaces(text), ErrNotConverged
}

func (r rule) apply(in string) (string, bool) {
	var out string
	switch {
	case r.literal:
		out = r.re.ReplaceAllLiteralString(in, r.repl)
	case r.global:
		out = r.re.ReplaceAllString(in, r.repl)
	default:
		loc := r.re.FindStringSubmatchIndex(in)
		if loc == nil {
			return in, false
		}
		expanded := r.re.ExpandString(nil, r.repl, in, loc)
		out = in[:loc[0]] + string(expanded) + in[loc[1]:]
	}
	return out, out != in
}

func parseLine(line string) (rule, error) {
	if isRegexRule(line) {
		return parseRegex(line)
	}
	if from, to, ok := strings.Cut(line, "=>"); ok {
		return parseLiteral(strings.TrimSpace(from), strings.TrimSpace(to))
	}
	return rule{}, errors.New("expected \"from => to\" or \"s/pattern/replacement/flags\"")
}

func parseLiteral(from, to string) (rule, error) {
	if from == "" {
		return rule{}, errors.New("literal rule needs a source phrase")
	}

	pattern := regexp.QuoteMeta(from)
	if first, _ := utf8.DecodeRuneInString(from); isWordRune(first) {
		pattern = `\b` + pattern
	}
	if last, _ := utf8.DecodeLastRuneInString(from); isWordRune(last) {
		pattern += `\b`
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return rule{}, err
	}
	return rule{re: re, repl: to, literal: true}, nil
}

func parseRegex(line string) (rule, error) {
	delim, size := utf8.DecodeRuneInString(line[1:])
	parts, err := splitUnescaped(line[1+size:], delim)
	if err != nil {
		return rule{}, err
	}
	pattern, repl, flags := parts[0], parts[1], strings.TrimSpace(parts[2])

	var global bool
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'g':
			global = true
		case 'i', 'm', 's':
			inline.WriteRune(f)
		default:
			return rule{}, fmt.Errorf("unknown regex flag %q", f)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule{}, fmt.Errorf("compile %q: %w", pattern, err)
	}
	return rule{re: re, repl: repl, global: global}, nil
}

// splitUnescaped splits "pattern/repl/flags" on delim. An escaped delimiter
// loses its backslash; other escapes are kept for the regexp parser.
func splitUnescaped(body string, delim rune) ([3]string, error) {
	var parts [3]string
	var cur strings.Builder
	idx := 0
	escaped := false

	for _, r := range body {
		switch {
		case escaped:
			if r != delim {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == delim && idx < 2:
			parts[idx] = cur.String()
			cur.Reset()
			idx++
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteRune('\\')
	}
	if idx < 2 {
		return parts, errors.New("unterminated regex rule")
	}
	parts[2] = cur.String()
	return parts, nil
}

func isRegexRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	r, _ := utf8.DecodeRuneInString(line[1:])
	return !isWordRune(r) && !unicode.IsSpace(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultIterationLimit
	}
	return limit
}

func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
