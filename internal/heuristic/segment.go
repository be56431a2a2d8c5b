package heuristic

import "strings"

// Segment sizing in bytes.
const (
	DefaultSegmentTarget = 400
	DefaultSegmentMax    = 600
)

// Segment splits text into passages on headings and blank lines, merging
// small passages up to target bytes and splitting oversized ones on line
// boundaries. Text no longer than maxSize is returned as one segment.
func Segment(text string, target, maxSize int) []string {
	if target <= 0 || maxSize <= 0 {
		target, maxSize = DefaultSegmentTarget, DefaultSegmentMax
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxSize {
		return []string{text}
	}

	var out []string
	acc := ""
	flush := func() {
		if acc == "" {
			return
		}
		if len(acc) > maxSize {
			out = append(out, splitLines(acc, target)...)
		} else {
			out = append(out, acc)
		}
		acc = ""
	}
	for _, p := range passages(text) {
		if acc == "" {
			acc = p
			continue
		}
		if joined := acc + "\n\n" + p; len(joined) <= target {
			acc = joined
			continue
		}
		flush()
		acc = p
	}
	flush()
	return out
}

// passages breaks text at markdown headings and paragraph gaps.
func passages(text string) []string {
	var out, cur []string
	emit := func() {
		if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
			out = append(out, t)
		}
		cur = nil
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#") && len(cur) > 0:
			emit()
		case trimmed == "":
			emit()
			continue
		}
		cur = append(cur, line)
	}
	emit()
	return out
}

func splitLines(text string, target int) []string {
	var out, cur []string
	size := 0
	for _, line := range strings.Split(text, "\n") {
		if size+len(line) > target && len(cur) > 0 {
			if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
				out = append(out, t)
			}
			cur, size = nil, 0
		}
		cur = append(cur, line)
		size += len(line) + 1
	}
	if t := strings.TrimSpace(strings.Join(cur, "\n")); t != "" {
		out = append(out, t)
	}
	return out
}

// leadingSentence returns text up to and including its first sentence terminator.
func leadingSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				return strings.TrimSpace(text[:i+1])
			}
		}
	}
	return text
}
