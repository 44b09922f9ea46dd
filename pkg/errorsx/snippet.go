package errorsx

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"
)

// Snippet is a rustc-style diagnostic: a message plus the source lines
// around the offending position, with a caret underline. It is attached to
// MalformedClass errors (the only errorsx.Kind with a meaningful source
// position) and to the single permanent-failure diagnostic built per
// rejected class.
type Snippet struct {
	Message  string
	Filename string
	Line     int // 1-indexed
	Column   int // 1-indexed
	Length   int // span length, for the underline

	SourceLines   []string
	HighlightLine int // index into SourceLines

	Annotation string // text after the ^^^^ underline
	Suggestion string
}

var (
	sourceCache   = make(map[string][]string)
	sourceCacheMu sync.RWMutex
)

// NewSnippet builds a Snippet from a 1-indexed file/line/column, reading
// up to two lines of context from disk (cached per filename).
func NewSnippet(filename string, line, column int, message string) *Snippet {
	if line <= 0 {
		return &Snippet{Message: message, Filename: filename, Length: 1}
	}

	lines, highlight := extractSourceLines(filename, line, 2)
	return &Snippet{
		Message:       message,
		Filename:      filename,
		Line:          line,
		Column:        column,
		Length:        1,
		SourceLines:   lines,
		HighlightLine: highlight,
	}
}

func (s *Snippet) WithAnnotation(format string, args ...interface{}) *Snippet {
	s.Annotation = fmt.Sprintf(format, args...)
	return s
}

func (s *Snippet) WithSuggestion(format string, args ...interface{}) *Snippet {
	s.Suggestion = fmt.Sprintf(format, args...)
	return s
}

func (s *Snippet) WithSpan(length int) *Snippet {
	if length < 1 {
		length = 1
	}
	s.Length = length
	return s
}

// Format renders the diagnostic the way rustc/go vet-adjacent tools do:
// a header line, a numbered snippet with a caret underline, then an
// optional suggestion.
func (s *Snippet) Format() string {
	var buf strings.Builder

	if s.Line > 0 {
		fmt.Fprintf(&buf, "error: %s (%s:%d:%d)\n\n", s.Message, s.Filename, s.Line, s.Column)
	} else {
		fmt.Fprintf(&buf, "error: %s\n\n", s.Message)
	}

	if len(s.SourceLines) > 0 && s.Line > 0 {
		startLine := s.Line - s.HighlightLine
		for i, line := range s.SourceLines {
			lineNum := startLine + i
			fmt.Fprintf(&buf, "  %4d | %s\n", lineNum, line)
			if i == s.HighlightLine {
				col := s.Column - 1
				if col < 0 {
					col = 0
				}
				if col > len(line) {
					col = len(line)
				}
				caretIndent := utf8.RuneCountInString(line[:col])
				fmt.Fprintf(&buf, "       | %s%s", strings.Repeat(" ", caretIndent), strings.Repeat("^", s.Length))
				if s.Annotation != "" {
					fmt.Fprintf(&buf, " %s", s.Annotation)
				}
				buf.WriteByte('\n')
			}
		}
		buf.WriteByte('\n')
	}

	if s.Suggestion != "" {
		fmt.Fprintf(&buf, "suggestion: %s\n", s.Suggestion)
	}

	return buf.String()
}

func (s *Snippet) Error() string { return s.Format() }

func extractSourceLines(filename string, targetLine, context int) ([]string, int) {
	sourceCacheMu.RLock()
	allLines, cached := sourceCache[filename]
	sourceCacheMu.RUnlock()

	if !cached {
		f, err := os.Open(filename)
		if err != nil {
			return nil, 0
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		allLines = nil
		for scanner.Scan() {
			allLines = append(allLines, scanner.Text())
		}
		if scanner.Err() != nil {
			return nil, 0
		}

		sourceCacheMu.Lock()
		sourceCache[filename] = allLines
		sourceCacheMu.Unlock()
	}

	idx := targetLine - 1
	if idx < 0 || idx >= len(allLines) {
		return nil, 0
	}

	start := idx - context
	if start < 0 {
		start = 0
	}
	end := idx + context + 1
	if end > len(allLines) {
		end = len(allLines)
	}

	return allLines[start:end], idx - start
}

// ClearSourceCache drops all cached file contents; intended for tests that
// rewrite a file and need extractSourceLines to re-read it.
func ClearSourceCache() {
	sourceCacheMu.Lock()
	sourceCache = make(map[string][]string)
	sourceCacheMu.Unlock()
}
