package reply

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// softFragmentLimit is where a paragraph gets cut on sentence boundaries.
	softFragmentLimit = 200
	// minFragmentLen keeps one-word crumbs glued to their neighbour.
	minFragmentLen = 12
	// atomicDigitRun marks card and phone numbers that must never be cut.
	atomicDigitRun = 8
)

// SplitReply breaks one generated answer into the short messages a person
// would type. Lines split first, long lines split again on sentence
// boundaries, tiny leftovers merge back into the previous fragment. A line
// carrying a long digit run stays whole no matter its length.
func SplitReply(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var fragments []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hasLongDigitRun(line) || utf8.RuneCountInString(line) <= softFragmentLimit {
			fragments = append(fragments, line)
			continue
		}
		fragments = append(fragments, packSentences(cutSentences(line))...)
	}
	return mergeShort(fragments)
}

// cutSentences splits on ./!/? followed by whitespace, keeping the
// punctuation with its sentence.
func cutSentences(line string) []string {
	var out []string
	runes := []rune(line)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

// packSentences greedily joins sentences while the fragment stays under the
// soft limit. A single oversized sentence goes out as is.
func packSentences(sentences []string) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, s := range sentences {
		sLen := utf8.RuneCountInString(s)
		if curLen > 0 && curLen+sLen+1 > softFragmentLimit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += sLen
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

func mergeShort(fragments []string) []string {
	if len(fragments) <= 1 {
		return fragments
	}
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if len(out) > 0 && utf8.RuneCountInString(f) < minFragmentLen {
			out[len(out)-1] += "\n" + f
			continue
		}
		out = append(out, f)
	}
	if len(out) > 1 && utf8.RuneCountInString(out[0]) < minFragmentLen {
		out[1] = out[0] + "\n" + out[1]
		out = out[1:]
	}
	return out
}

// hasLongDigitRun reports whether the line contains atomicDigitRun digits in
// a row, counting digits joined by spaces or dashes as one number.
func hasLongDigitRun(s string) bool {
	run := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			run++
			if run >= atomicDigitRun {
				return true
			}
		case r == ' ' || r == '-':
		default:
			run = 0
		}
	}
	return false
}
