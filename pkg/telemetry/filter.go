package telemetry

import (
	"regexp"

	"go.opentelemetry.io/otel/attribute"
)

const defaultMask = "***"

// Patterns that look like credentials are always masked, independent of
// user-supplied filters.
var builtinPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{4,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{8,}`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[=:]\s*\S+`),
}

// FilterConfig controls masking of sensitive values in span attributes and
// recorded inputs.
type FilterConfig struct {
	// Mask replaces matched text. Defaults to "***".
	Mask string
	// Patterns are additional regular expressions to mask.
	Patterns []string
}

type filter struct {
	mask     string
	patterns []*regexp.Regexp
}

func newFilter(cfg FilterConfig) (*filter, error) {
	mask := cfg.Mask
	if mask == "" {
		mask = defaultMask
	}
	patterns := make([]*regexp.Regexp, 0, len(builtinPatterns)+len(cfg.Patterns))
	patterns = append(patterns, builtinPatterns...)
	for _, raw := range cfg.Patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return &filter{mask: mask, patterns: patterns}, nil
}

func (f *filter) maskText(text string) string {
	for _, re := range f.patterns {
		text = re.ReplaceAllString(text, f.mask)
	}
	return text
}

func (f *filter) sanitize(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		switch attr.Value.Type() {
		case attribute.STRING:
			out[i] = attribute.String(string(attr.Key), f.maskText(attr.Value.AsString()))
		case attribute.STRINGSLICE:
			values := attr.Value.AsStringSlice()
			masked := make([]string, len(values))
			for j, v := range values {
				masked[j] = f.maskText(v)
			}
			out[i] = attribute.StringSlice(string(attr.Key), masked)
		default:
			out[i] = attr
		}
	}
	return out
}
