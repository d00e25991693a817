package cleanup

import (
	"bytes"
	"regexp"

	"github.com/fulmenhq/sitekeeper/pkg/safeio"
)

// Analysis summarises an orphan so an operator can judge it.
type Analysis struct {
	Path      string   `json:"path"`
	Size      int64    `json:"size"`
	Lines     int      `json:"lines"`
	Important bool     `json:"important"`
	Markers   []string `json:"markers,omitempty"`
}

type marker struct {
	name    string
	pattern *regexp.Regexp
}

// importantMarkers flag content worth a second look before deleting.
var importantMarkers = []marker{
	{"function", regexp.MustCompile(`\bfunction\s*[\w$]*\s*\(`)},
	{"class", regexp.MustCompile(`\bclass\s+[\w$]+`)},
	{"@media", regexp.MustCompile(`@media\b`)},
	{"keyframes", regexp.MustCompile(`@(-\w+-)?keyframes\b`)},
	{"import", regexp.MustCompile(`(^|[\s;])(import\s|@import\b)`)},
	{"export", regexp.MustCompile(`(^|[\s;])export\s`)},
}

// AnalyzeContent inspects content already in memory.
func AnalyzeContent(rel string, content []byte) Analysis {
	a := Analysis{Path: rel, Size: int64(len(content))}
	if len(content) > 0 {
		a.Lines = bytes.Count(content, []byte("\n"))
		if content[len(content)-1] != '\n' {
			a.Lines++
		}
	}
	for _, m := range importantMarkers {
		if m.pattern.Match(content) {
			a.Markers = append(a.Markers, m.name)
		}
	}
	a.Important = len(a.Markers) > 0
	return a
}

// Analyze reads rel under root and inspects it.
func Analyze(root, rel string) (Analysis, error) {
	data, err := safeio.ReadFileContained(root, rel)
	if err != nil {
		return Analysis{Path: rel}, err
	}
	return AnalyzeContent(rel, data), nil
}
