package parser

import (
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// xmlEntry is one element per line: attributes and child elements become fields.
type xmlEntry struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlChild `xml:",any"`
	Text     string     `xml:",chardata"`
}

type xmlChild struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// Declarations, comments and bare wrapper tags carry no entry.
var xmlStructural = regexp.MustCompile(`^(?:<\?.*\?>|<!.*>|</?[\w:.-]+\s*>)$`)

// IsXMLLine reports whether a line opens an XML document.
func IsXMLLine(line string) bool {
	s := strings.TrimSpace(line)
	if strings.HasPrefix(s, "<?xml") || (strings.HasPrefix(s, "<") && !strings.HasPrefix(s, "</") && isXMLStructural(s)) {
		return true
	}
	_, ok := ParseXMLLine(s)
	return ok
}

// NewXML creates the per-line XML parser. Declarations and wrapper tags are
// ignored rather than counted as malformed.
func NewXML() Parser {
	return &LineParser{family: Document, parse: ParseXMLLine, ignore: isXMLStructural}
}

func isXMLStructural(line string) bool {
	return xmlStructural.MatchString(strings.TrimSpace(line))
}

// ParseXMLLine decodes one element. Attributes come first, then each child
// element's tag maps to its text.
func ParseXMLLine(line string) (*record.Record, bool) {
	var entry xmlEntry
	if err := xml.Unmarshal([]byte(line), &entry); err != nil {
		return nil, false
	}
	if len(entry.Attrs) == 0 && len(entry.Children) == 0 {
		return nil, false
	}

	rec := record.New(len(entry.Attrs) + len(entry.Children))
	for _, a := range entry.Attrs {
		rec.Set(a.Name.Local, a.Value)
	}
	for _, c := range entry.Children {
		rec.Set(c.XMLName.Local, strings.TrimSpace(c.Text))
	}
	return rec, true
}
