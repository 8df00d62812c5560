package edge

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Parser extracts candidate address strings from a response body.
// Candidates are validated by the caller, so parsers may be generous.
type Parser struct {
	Name string
	// Match reports whether the parser should run for this body.
	Match func(contentType, body string) bool
	Parse func(body string) ([]string, error)
}

// DefaultParsers is the strategy chain used when a Source sets none:
// JSON, then XML, then a regular expression scan of the raw text.
func DefaultParsers() []Parser {
	return []Parser{JSONParser, XMLParser, RegexParser}
}

// JSONParser reads a top-level array, or the items, data and ips array fields
// of a top-level object.
var JSONParser = Parser{
	Name: "json",
	Match: func(contentType, body string) bool {
		return strings.Contains(contentType, "json") || strings.HasPrefix(body, "[") || strings.HasPrefix(body, "{")
	},
	Parse: parseJSON,
}

// XMLParser collects the character data of every element.
var XMLParser = Parser{
	Name: "xml",
	Match: func(contentType, body string) bool {
		return strings.Contains(contentType, "xml") || strings.HasPrefix(body, "<")
	},
	Parse: parseXML,
}

var candidateRegex = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b|\b[0-9A-Fa-f:]{3,}\b`)

// RegexParser scans any text for IPv4 dotted quads and IPv6-looking tokens.
var RegexParser = Parser{
	Name:  "regex",
	Match: func(string, string) bool { return true },
	Parse: func(body string) ([]string, error) {
		return candidateRegex.FindAllString(body, -1), nil
	},
}

var jsonListFields = []string{"items", "data", "ips"}

func parseJSON(body string) ([]string, error) {
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, err
	}

	switch v := doc.(type) {
	case []any:
		return stringify(v), nil
	case map[string]any:
		var out []string
		for _, field := range jsonListFields {
			if list, ok := v[field].([]any); ok {
				out = append(out, stringify(list)...)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected top-level %T", doc)
}

func stringify(list []any) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// parseXML returns the text of every element. A document that fails to
// parse anywhere yields no candidates at all.
func parseXML(body string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	var (
		out  []string
		seen bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			seen = true
		case xml.CharData:
			if s := strings.TrimSpace(string(t)); s != "" {
				out = append(out, s)
			}
		}
	}
	if !seen {
		return nil, errors.New("no root element")
	}
	return out, nil
}
