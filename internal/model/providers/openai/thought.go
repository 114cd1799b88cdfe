package openai

import "strings"

const thoughtMarker = "THOUGHT"

// thoughtFilter drops a leading "THOUGHT ..." block that some Gemini models
// leak through the compatibility endpoint. The block ends at the first
// blank line; everything after it is forwarded unchanged.
type thoughtFilter struct {
	emit    func(string)
	buf     strings.Builder
	decided bool
	inBlock bool
}

func newThoughtFilter(emit func(string)) *thoughtFilter {
	return &thoughtFilter{emit: emit}
}

func (f *thoughtFilter) Write(chunk string) {
	switch {
	case f.inBlock:
		f.buf.WriteString(chunk)
		s := f.buf.String()
		if end := strings.Index(s, "\n\n"); end >= 0 {
			f.inBlock = false
			f.buf.Reset()
			f.out(s[end+2:])
		}

	case f.decided:
		f.out(chunk)

	default:
		f.buf.WriteString(chunk)
		s := f.buf.String()
		if strings.HasPrefix(s, thoughtMarker) {
			f.decided = true
			f.inBlock = true
			f.Write("")
			return
		}
		if len(s) >= len(thoughtMarker) || !strings.HasPrefix(thoughtMarker, s) {
			f.decided = true
			f.buf.Reset()
			f.out(s)
		}
	}
}

// Flush releases text still held while undecided. An unterminated thought
// block is discarded.
func (f *thoughtFilter) Flush() {
	if !f.decided && f.buf.Len() > 0 {
		f.out(f.buf.String())
	}
	f.buf.Reset()
}

func (f *thoughtFilter) out(s string) {
	if s != "" && f.emit != nil {
		f.emit(s)
	}
}
