package render

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	fence      = regexp.MustCompile("(?s)```.*?```")
	fenceParts = regexp.MustCompile("(?s)^```(\\w*)\\n(.*?)```$")
)

// Segment is either plain text or a fenced code block
type Segment struct {
	Code     bool
	Language string
	Text     string
}

// Split cuts content on triple-backtick fences. Code segments carry the
// fence's language tag and trimmed body; an unterminated fence stays text.
func Split(content string) []Segment {
	var segments []Segment
	last := 0
	for _, loc := range fence.FindAllStringIndex(content, -1) {
		if loc[0] > last {
			segments = append(segments, Segment{Text: content[last:loc[0]]})
		}
		segments = append(segments, codeSegment(content[loc[0]:loc[1]]))
		last = loc[1]
	}
	if last < len(content) {
		segments = append(segments, Segment{Text: content[last:]})
	}
	return segments
}

func codeSegment(block string) Segment {
	if m := fenceParts.FindStringSubmatch(block); m != nil {
		return Segment{Code: true, Language: m[1], Text: strings.TrimSpace(m[2])}
	}
	return Segment{Code: true, Text: strings.TrimSpace(block[3 : len(block)-3])}
}

// Write prints content for a terminal, framing code blocks with their language.
func Write(w io.Writer, content string) error {
	for _, seg := range Split(content) {
		if !seg.Code {
			if _, err := io.WriteString(w, seg.Text); err != nil {
				return err
			}
			continue
		}
		lang := seg.Language
		if lang == "" {
			lang = "code"
		}
		if _, err := fmt.Fprintf(w, "\n┌─ %s\n%s\n└─\n", lang, indent(seg.Text)); err != nil {
			return err
		}
	}
	return nil
}

func indent(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		lines[i] = "│ " + l
	}
	return strings.Join(lines, "\n")
}
