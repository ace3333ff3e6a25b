package session

import "strings"

// Sanitize flattens a model reply into one IRC-safe line: newlines become
// spaces, backticks are stripped, runs of whitespace collapse.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "`", "")
	return strings.Join(strings.Fields(s), " ")
}

// Chunks splits text into pieces of at most max bytes, breaking on word
// boundaries. A single word longer than max is hard-split. IRC lines are
// limited to 512 bytes including command and target, hence the headroom.
func Chunks(text string, max int) []string {
	if max <= 0 {
		return []string{text}
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, word := range strings.Fields(text) {
		if len(word) > max {
			flush()
			for len(word) > max {
				chunks = append(chunks, word[:max])
				word = word[max:]
			}
			if word != "" {
				cur.WriteString(word)
			}
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(word) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	flush()
	return chunks
}
