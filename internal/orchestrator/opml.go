package orchestrator

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"golang.org/x/net/html/charset"
)

// ConfidenceOPML 为 OPML 友链的置信度：站长主动发布的订阅清单。
const ConfidenceOPML = 0.95

type opmlDoc struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// opmlEntry 为 OPML 中的一个订阅。
type opmlEntry struct {
	Name string
	URL  string // htmlUrl 优先，缺失时用 xmlUrl
}

// parseOPML 展开嵌套分组，返回全部订阅条目。
func parseOPML(data []byte) ([]opmlEntry, error) {
	var doc opmlDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var out []opmlEntry
	var walk func([]opmlOutline)
	walk = func(list []opmlOutline) {
		for _, o := range list {
			u := o.HTMLURL
			if u == "" {
				u = o.XMLURL
			}
			if u != "" {
				name := o.Title
				if name == "" {
					name = o.Text
				}
				out = append(out, opmlEntry{Name: name, URL: u})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return out, nil
}
