package preview

import (
	"testing"
)

func mustParse(t *testing.T, page string) extracted {
	t.Helper()
	doc, err := parseDocument([]byte(page))
	if err != nil {
		t.Fatalf("parseDocument() error = %v", err)
	}
	return extractFields(doc)
}

func TestExtractFieldsPrecedence(t *testing.T) {
	tests := []struct {
		name string
		page string
		want extracted
	}{
		{
			name: "open graph beats twitter",
			page: `<meta name="twitter:title" content="Tw"><meta property="og:title" content="OG">
<meta name="twitter:image" content="/tw.png"><meta property="og:image" content="/og.png">`,
			want: extracted{title: "OG", image: "/og.png"},
		},
		{
			name: "og keys published with name attribute",
			page: `<meta name="og:title" content="Named"><meta name="og:description" content="Desc">`,
			want: extracted{title: "Named", description: "Desc"},
		},
		{
			name: "twitter keys published with property attribute",
			page: `<meta property="twitter:title" content="Prop"><meta name="twitter:image:src" content="/src.png">`,
			want: extracted{title: "Prop", image: "/src.png"},
		},
		{
			name: "twitter image published with property attribute",
			page: `<meta property="twitter:image" content="/prop.png"><meta property="twitter:image:src" content="/prop-src.png">`,
			want: extracted{image: "/prop.png"},
		},
		{
			name: "twitter image src with property attribute",
			page: `<meta property="twitter:image:src" content="/prop-src.png">`,
			want: extracted{image: "/prop-src.png"},
		},
		{
			name: "empty content is skipped",
			page: `<meta property="og:title" content="  "><meta name="twitter:title" content="Fallback">`,
			want: extracted{title: "Fallback"},
		},
		{
			name: "image url variants",
			page: `<meta property="og:image:secure_url" content="/secure.png"><meta property="og:image:url" content="/url.png">`,
			want: extracted{image: "/url.png"},
		},
		{
			name: "icon in document order",
			page: `<link rel="apple-touch-icon" href="/touch.png"><link rel="icon" href="/favicon.ico">`,
			want: extracted{icon: "/touch.png"},
		},
		{
			name: "icon skips unrelated links",
			page: `<link rel="canonical" href="/c"><link rel="preload icon-ish" href="/p"><link rel="Shortcut Icon" href="/s.ico">`,
			want: extracted{icon: "/s.ico"},
		},
		{
			name: "site name and actor",
			page: `<meta property="og:site_name" content="Site"><meta name="twitter:creator" content="@someone">`,
			want: extracted{siteName: "Site", actor: "@someone"},
		},
		{
			name: "no tags",
			page: `<title>Plain page</title><p>hello</p>`,
			want: extracted{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.page)
			if got.title != tt.want.title {
				t.Errorf("title = %q, want %q", got.title, tt.want.title)
			}
			if got.description != tt.want.description {
				t.Errorf("description = %q, want %q", got.description, tt.want.description)
			}
			if got.image != tt.want.image {
				t.Errorf("image = %q, want %q", got.image, tt.want.image)
			}
			if got.icon != tt.want.icon {
				t.Errorf("icon = %q, want %q", got.icon, tt.want.icon)
			}
			if got.siteName != tt.want.siteName {
				t.Errorf("siteName = %q, want %q", got.siteName, tt.want.siteName)
			}
			if got.actor != tt.want.actor {
				t.Errorf("actor = %q, want %q", got.actor, tt.want.actor)
			}
		})
	}
}

func TestExtractFieldsTruncatedMarkup(t *testing.T) {
	got := mustParse(t, `<html><head><meta property="og:title" content="Cut"><meta property="og:descr`)
	if got.title != "Cut" {
		t.Errorf("title = %q, want Cut", got.title)
	}
	if !got.hasMeta() {
		t.Error("hasMeta() = false, want true")
	}
}

func TestParseDimensions(t *testing.T) {
	tests := []struct {
		width, height string
		wantOK        bool
	}{
		{"1200", "630", true},
		{" 640 ", "480", true},
		{"1200", "", false},
		{"", "630", false},
		{"0", "630", false},
		{"1200", "-1", false},
		{"12.5", "630", false},
		{"wide", "tall", false},
	}

	for _, tt := range tests {
		w, h := parseDimensions(tt.width, tt.height)
		if (w != nil) != tt.wantOK || (h != nil) != tt.wantOK {
			t.Errorf("parseDimensions(%q, %q) = %v, %v; want both set = %v", tt.width, tt.height, w, h, tt.wantOK)
		}
	}
}

func TestHasMeta(t *testing.T) {
	if (extracted{icon: "/favicon.ico", siteName: "Site"}).hasMeta() {
		t.Error("icon and site name alone should not count as meta")
	}
	if !(extracted{description: "d"}).hasMeta() {
		t.Error("description should count as meta")
	}
}
