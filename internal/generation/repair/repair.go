// Package repair salvages one structured JSON value (object or array) from
// raw model output.
//
// Completion models wrap values in prose or code fences, emit single
// backslashes inside string literals (math notation like \sigma), and get cut
// off mid-value when they hit the output token limit. Parse runs a fixed
// sequence of recovery stages, each only attempted when the previous
// candidate still fails to parse:
//
//  1. direct parse of the trimmed text
//  2. fenced code block extraction
//  3. bracket scan (first '{' or '[' to its last closer)
//  4. invalid escape sanitization
//  5. truncation repair
//
// The returned bytes are always a valid JSON document. When every stage
// fails, Parse returns a *ParseError carrying the last underlying error.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// validEscapes are the characters allowed after a backslash in a JSON string.
const validEscapes = `"\/bfnrtu`

// maxTrimRetreats bounds how many closing quotes truncation repair walks
// back through before giving up on the text.
const maxTrimRetreats = 64

// ParseError is returned when no recovery stage could extract a value.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecoverable model output (last stage: %s): %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParseError reports whether err is (or wraps) a recovery failure.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse extracts one JSON object or array from raw model output.
func Parse(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ParseError{Stage: "direct", Err: errors.New("empty response text")}
	}

	// Stage 1: the happy path, the model returned bare JSON.
	value, err := tryParse(text)
	if err == nil {
		return value, nil
	}
	stage, lastErr := "direct", err

	// Stage 2: JSON inside a ``` fence, with or without a language tag.
	candidate := text
	if fenced, ok := extractFence(text); ok {
		candidate = fenced
		if value, err = tryParse(candidate); err == nil {
			return value, nil
		}
		stage, lastErr = "fence", err
	}

	// Stage 3: strip prose around the outermost value.
	if span, ok := bracketSpan(candidate); ok {
		candidate = span
		if value, err = tryParse(candidate); err == nil {
			return value, nil
		}
		stage, lastErr = "bracket-scan", err
	}

	// Stage 4: double lone backslashes so \sigma and friends survive.
	candidate = sanitizeEscapes(candidate)
	if value, err = tryParse(candidate); err == nil {
		return value, nil
	}
	stage, lastErr = "escape-sanitize", err

	// Stage 5: the output limit cut the value off mid-stream.
	if repaired, ok := repairTruncation(candidate); ok {
		if value, err = tryParse(repaired); err == nil {
			return value, nil
		}
		stage, lastErr = "truncation-repair", err
	}

	return nil, &ParseError{Stage: stage, Err: lastErr}
}

// tryParse validates that s is exactly one JSON object or array and returns
// the validated bytes unchanged, preserving number and key fidelity.
func tryParse(s string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("empty candidate")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, fmt.Errorf("candidate starts with %q, not a structured value", trimmed[0])
	}
	var probe any
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, err
	}
	return json.RawMessage(trimmed), nil
}

// extractFence returns the content of the first triple-backtick fence.
// An unclosed fence (truncated output) extends to the end of the text.
func extractFence(s string) (string, bool) {
	const fence = "```"
	start := strings.Index(s, fence)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(fence):]
	end := strings.Index(rest, fence)
	if end < 0 {
		end = len(rest)
	}
	content := rest[:end]

	// Drop a language tag such as "json" on the opening fence line.
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		tag := strings.TrimSpace(content[:nl])
		if tag != "" && !strings.ContainsAny(tag, "{[") {
			content = content[nl+1:]
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", false
	}
	return content, true
}

// bracketSpan trims s to the substring between the first opening delimiter
// and its last matching closer. When the closer never arrives the span runs
// to the end of the text so truncation repair can finish the job.
func bracketSpan(s string) (string, bool) {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start, closer := objStart, byte('}')
	if objStart < 0 || (arrStart >= 0 && arrStart < objStart) {
		start, closer = arrStart, ']'
	}
	if start < 0 {
		return "", false
	}

	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:], true
	}
	return s[start : end+1], true
}

// sanitizeEscapes doubles every backslash not followed by a valid escape
// character, turning an invalid escape into a literal backslash so the
// character after it survives verbatim.
func sanitizeEscapes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(s) && strings.IndexByte(validEscapes, s[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

// repairTruncation closes off text that was cut mid-value. It first tries to
// balance the text as-is, then retreats through unescaped quotes from the
// end, discarding the partial tail, until a candidate validates.
func repairTruncation(s string) (string, bool) {
	if candidate, ok := closeDelimiters(s); ok && json.Valid([]byte(candidate)) {
		return candidate, true
	}

	pos := len(s)
	for retreats := 0; retreats < maxTrimRetreats; retreats++ {
		pos = prevUnescapedQuote(s, pos)
		if pos < 0 {
			break
		}
		candidate, ok := closeDelimiters(s[:pos+1])
		if ok && json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	return "", false
}

// closeDelimiters strips a dangling comma, then walks t tracking string and
// escape state, and appends the closer for every delimiter still open, each
// array closing before the object that contains it. It refuses text that
// ends inside a string literal or closes a delimiter it never opened.
func closeDelimiters(t string) (string, bool) {
	t = strings.TrimRight(t, " \t\r\n")
	t = strings.TrimSuffix(t, ",")
	t = strings.TrimRight(t, " \t\r\n")
	if t == "" {
		return "", false
	}

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(t); i++ {
		c := t[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return "", false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(t) + len(stack))
	b.WriteString(t)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// prevUnescapedQuote returns the index of the closest quote before from
// whose run of immediately preceding backslashes has even length.
func prevUnescapedQuote(s string, from int) int {
	for i := from - 1; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}
