package preview

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// rule is one fallback source: the first element matching selector whose
// attr is non-empty (and which passes accept, when set) yields the value.
type rule struct {
	selector string
	attr     string
	accept   func(s *goquery.Selection) bool
}

// chain is an ordered list of rules; the first rule that yields a value wins
type chain []rule

func metaProperty(key string) rule {
	return rule{selector: fmt.Sprintf(`meta[property=%q]`, key), attr: "content"}
}

func metaName(key string) rule {
	return rule{selector: fmt.Sprintf(`meta[name=%q]`, key), attr: "content"}
}

var (
	titleChain = chain{
		metaProperty("og:title"),
		metaName("og:title"),
		metaName("twitter:title"),
		metaProperty("twitter:title"),
	}

	descriptionChain = chain{
		metaProperty("og:description"),
		metaName("og:description"),
		metaName("twitter:description"),
		metaProperty("twitter:description"),
	}

	imageChain = chain{
		metaProperty("og:image"),
		metaProperty("og:image:url"),
		metaProperty("og:image:secure_url"),
		metaName("twitter:image"),
		metaProperty("twitter:image"),
		metaName("twitter:image:src"),
		metaProperty("twitter:image:src"),
	}

	imageWidthChain = chain{
		metaProperty("og:image:width"),
		metaName("og:image:width"),
	}

	imageHeightChain = chain{
		metaProperty("og:image:height"),
		metaName("og:image:height"),
	}

	siteNameChain = chain{
		metaProperty("og:site_name"),
		metaName("og:site_name"),
	}

	// A single rule keeps apple-touch-icon and icon candidates in document order.
	iconChain = chain{
		{selector: `link[rel][href]`, attr: "href", accept: isIconLink},
	}

	// actorChain names the person behind a video or stream
	actorChain = chain{
		metaProperty("og:video:actor"),
		metaProperty("video:actor"),
		metaName("twitter:creator"),
		metaName("author"),
	}
)

// first evaluates the chain against doc
func (c chain) first(doc *goquery.Document) string {
	for _, r := range c {
		var value string
		doc.Find(r.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if r.accept != nil && !r.accept(s) {
				return true
			}
			v, ok := s.Attr(r.attr)
			v = strings.TrimSpace(v)
			if !ok || v == "" {
				return true
			}
			value = v
			return false
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func isIconLink(s *goquery.Selection) bool {
	for _, token := range strings.Fields(strings.ToLower(s.AttrOr("rel", ""))) {
		switch token {
		case "icon", "apple-touch-icon", "apple-touch-icon-precomposed":
			return true
		}
	}
	return false
}

// extracted holds raw chain results before normalization
type extracted struct {
	title       string
	description string
	image       string
	imageWidth  *int
	imageHeight *int
	icon        string
	siteName    string
	actor       string
}

// hasMeta reports whether any recognizable preview tag was found
func (e extracted) hasMeta() bool {
	return e.title != "" || e.description != "" || e.image != ""
}

// parseDocument parses an HTML body. Truncated markup is fine: the parser
// closes open elements at EOF.
func parseDocument(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", errUpstreamMalformed, err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// extractFields runs every chain over doc
func extractFields(doc *goquery.Document) extracted {
	e := extracted{
		title:       titleChain.first(doc),
		description: descriptionChain.first(doc),
		image:       imageChain.first(doc),
		icon:        iconChain.first(doc),
		siteName:    siteNameChain.first(doc),
		actor:       actorChain.first(doc),
	}
	e.imageWidth, e.imageHeight = parseDimensions(imageWidthChain.first(doc), imageHeightChain.first(doc))
	return e
}

// parseDimensions returns both values only when both are positive integers
func parseDimensions(width, height string) (*int, *int) {
	w, err := strconv.Atoi(strings.TrimSpace(width))
	if err != nil || w <= 0 {
		return nil, nil
	}
	h, err := strconv.Atoi(strings.TrimSpace(height))
	if err != nil || h <= 0 {
		return nil, nil
	}
	return &w, &h
}
