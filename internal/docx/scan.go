package docx

import (
	"bytes"
	"regexp"
	"sort"
	"strings"
)

// Template markers recognised in document text.
const (
	MarkerNumber = "{{outgoing_no}}"
	MarkerDate   = "{{outgoing_date}}"
	MarkerStamp  = "{{stamp}}"
)

var markers = []string{MarkerNumber, MarkerDate, MarkerStamp}

// textElem matches a non-empty <w:t> element; group 1 is its raw (escaped) text.
var textElem = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

var paraEnd = []byte("</w:p>")

// textRun is one <w:t> element inside a part.
type textRun struct {
	start, end         int // whole element
	textStart, textEnd int // inner text
}

// paragraph groups the text runs that share a <w:p>. Word splits a typed
// marker across several runs, so matching is done on the joined text.
type paragraph struct {
	runs []textRun
	text string
}

// occurrence is a marker found at [start, start+len(marker)) of paragraph.text.
type occurrence struct {
	marker string
	start  int
}

func scanParagraphs(part []byte) []paragraph {
	matches := textElem.FindAllSubmatchIndex(part, -1)
	if len(matches) == 0 {
		return nil
	}

	var ends []int
	for off := 0; ; {
		i := bytes.Index(part[off:], paraEnd)
		if i < 0 {
			break
		}
		ends = append(ends, off+i)
		off += i + len(paraEnd)
	}

	var (
		out     []paragraph
		cur     paragraph
		curPara = -1
		sb      strings.Builder
	)
	flush := func() {
		if len(cur.runs) > 0 {
			cur.text = sb.String()
			out = append(out, cur)
		}
		cur = paragraph{}
		sb.Reset()
	}
	for _, m := range matches {
		para := sort.SearchInts(ends, m[0])
		if para != curPara {
			flush()
			curPara = para
		}
		cur.runs = append(cur.runs, textRun{start: m[0], end: m[1], textStart: m[2], textEnd: m[3]})
		sb.Write(part[m[2]:m[3]])
	}
	flush()
	return out
}

func findMarkers(text string) []occurrence {
	var out []occurrence
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], "{{")
		if j < 0 {
			break
		}
		pos := i + j
		matched := false
		for _, m := range markers {
			if strings.HasPrefix(text[pos:], m) {
				out = append(out, occurrence{marker: m, start: pos})
				i = pos + len(m)
				matched = true
				break
			}
		}
		if !matched {
			i = pos + 1
		}
	}
	return out
}
