package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"solarverify/internal/services"
)

// Certificate placeholders. Literal braces are written as {{ and }}.
const (
	FieldSampleID    = "sample_id"
	FieldPanelCount  = "panel_count"
	FieldTotalArea   = "total_area"
	FieldQCFlag      = "qc_flag"
	FieldHealthScore = "solar_health_score"
	FieldDate        = "date"
)

var knownFields = []string{FieldSampleID, FieldPanelCount, FieldTotalArea, FieldQCFlag, FieldHealthScore, FieldDate}

type segment struct {
	literal string
	field   string
}

// Template is a parsed certificate template.
type Template struct {
	segments []segment
}

// ParseTemplate parses text, rejecting unknown placeholders and unbalanced
// braces with ErrConfiguration.
func ParseTemplate(text string) (*Template, error) {
	var (
		segments []segment
		literal  strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, segment{literal: literal.String()})
			literal.Reset()
		}
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch c {
		case '{':
			if i+1 < len(text) && text[i+1] == '{' {
				literal.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 {
				return nil, templateError("unclosed placeholder at offset %d", i)
			}
			name := text[i+1 : i+1+end]
			if !slices.Contains(knownFields, name) {
				return nil, templateError("unknown placeholder {%s}", name)
			}
			flush()
			segments = append(segments, segment{field: name})
			i += end + 1
		case '}':
			if i+1 < len(text) && text[i+1] == '}' {
				literal.WriteByte('}')
				i++
				continue
			}
			return nil, templateError("unmatched } at offset %d", i)
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return &Template{segments: segments}, nil
}

// LoadTemplate reads and parses the template at path. A missing file is
// ErrTemplateMissing; an unreadable or malformed one is ErrConfiguration.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrTemplateMissing, "write", "certificate template", path, nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "preflight", "certificate template", path, err)
	}
	tmpl, err := ParseTemplate(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tmpl, nil
}

// Render substitutes values into the template. Missing values render empty.
func (t *Template) Render(values map[string]string) string {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.field != "" {
			b.WriteString(values[seg.field])
			continue
		}
		b.WriteString(seg.literal)
	}
	return b.String()
}

func templateError(format string, args ...any) error {
	return services.Wrap(services.ErrConfiguration, "preflight", "certificate template", fmt.Sprintf(format, args...), nil)
}
