// Package htmlscan turns raw markup into a flat, ordered stream of element
// events. It has no knowledge of patch notes; callers decide what the events
// mean.
package htmlscan

import (
	"strings"

	"golang.org/x/net/html"
)

// interestingTags are the elements that produce events
var interestingTags = map[string]bool{
	"a":     true,
	"h1":    true,
	"h2":    true,
	"h3":    true,
	"p":     true,
	"li":    true,
	"time":  true,
	"title": true,
}

// voidTags never have a closing tag, so they are not pushed onto the open stack
var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Event is one closed element from the interesting set
type Event struct {
	Tag     string
	Attrs   map[string]string
	Text    string   // whitespace-collapsed inner text
	Parents []string // ancestor tag names at open time, outermost first
}

// HasAncestor reports whether tag appears anywhere in the ancestor chain
func (e Event) HasAncestor(tag string) bool {
	for _, p := range e.Parents {
		if p == tag {
			return true
		}
	}
	return false
}

// Attr returns an attribute value or "" when absent
func (e Event) Attr(key string) string {
	return e.Attrs[key]
}

// Document is the scanner output. It is not modified after Scan returns.
type Document struct {
	Title  string              // text of the first non-empty <title>, "" if none
	Metas  []map[string]string // attributes of every <meta> tag
	Events []Event
}

// EventsWithTag returns events with the given tag in document order
func (d *Document) EventsWithTag(tag string) []Event {
	var out []Event
	for _, ev := range d.Events {
		if ev.Tag == tag {
			out = append(out, ev)
		}
	}
	return out
}

// captureFrame is an in-progress interesting element
type captureFrame struct {
	tag     string
	attrs   map[string]string
	parents []string
	text    strings.Builder
}

// scanner is the stack machine. openTags mirrors the currently open elements;
// captures holds frames for open interesting elements, innermost last.
type scanner struct {
	openTags []string
	captures []*captureFrame
	events   []Event
	metas    []map[string]string
}

// Scan tokenizes markup and returns its events. It never fails: malformed or
// unbalanced markup yields fewer or coarser events, not an error.
func Scan(markup string) *Document {
	s := &scanner{}
	z := html.NewTokenizer(strings.NewReader(markup))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a lexer error; either way the input is exhausted
			return s.document()
		case html.StartTagToken:
			name, attrs := readTag(z)
			s.open(name, attrs)
		case html.SelfClosingTagToken:
			name, attrs := readTag(z)
			s.open(name, attrs)
			if !voidTags[name] {
				s.close(name)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			s.close(string(name))
		case html.TextToken:
			s.text(string(z.Text()))
		}
	}
}

func readTag(z *html.Tokenizer) (string, map[string]string) {
	rawName, hasAttr := z.TagName()
	name := string(rawName)
	attrs := make(map[string]string)
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		attrs[string(key)] = string(val)
	}
	return name, attrs
}

func (s *scanner) open(tag string, attrs map[string]string) {
	if tag == "meta" {
		s.metas = append(s.metas, attrs)
	}

	if interestingTags[tag] {
		parents := make([]string, len(s.openTags))
		copy(parents, s.openTags)
		s.captures = append(s.captures, &captureFrame{
			tag:     tag,
			attrs:   attrs,
			parents: parents,
		})
	}

	if !voidTags[tag] {
		s.openTags = append(s.openTags, tag)
	}
}

func (s *scanner) close(tag string) {
	if n := len(s.captures); n > 0 && s.captures[n-1].tag == tag {
		frame := s.captures[n-1]
		s.captures = s.captures[:n-1]
		s.events = append(s.events, Event{
			Tag:     frame.tag,
			Attrs:   frame.attrs,
			Text:    NormalizeSpace(frame.text.String()),
			Parents: frame.parents,
		})
	}

	for i := len(s.openTags) - 1; i >= 0; i-- {
		if s.openTags[i] == tag {
			s.openTags = append(s.openTags[:i], s.openTags[i+1:]...)
			break
		}
	}
}

// text pads data with spaces so adjacent inline elements never merge words
func (s *scanner) text(data string) {
	if data == "" || len(s.captures) == 0 {
		return
	}
	for _, frame := range s.captures {
		frame.text.WriteByte(' ')
		frame.text.WriteString(data)
		frame.text.WriteByte(' ')
	}
}

func (s *scanner) document() *Document {
	doc := &Document{
		Metas:  s.metas,
		Events: s.events,
	}
	for _, ev := range s.events {
		if ev.Tag == "title" && ev.Text != "" {
			doc.Title = ev.Text
			break
		}
	}
	return doc
}

// NormalizeSpace collapses every whitespace run to a single space and trims
func NormalizeSpace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
