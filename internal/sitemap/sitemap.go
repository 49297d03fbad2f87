// Package sitemap generates /sitemap.xml for the static pages of the site
// plus any extra pages listed in the build's sitemap.yaml manifest.
package sitemap

import (
	"encoding/xml"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devint-cl/devint-web/internal/xerrors"
)

const (
	Namespace    = "http://www.sitemaps.org/schemas/sitemap/0.9"
	ManifestFile = "sitemap.yaml"

	dateLayout = "2006-01-02"
)

// StaticPages are always listed. "" is the home page.
var StaticPages = []string{"", "productos", "servicios", "nosotros", "blog", "contacto"}

type Page struct {
	Path       string  `yaml:"path"`
	LastMod    string  `yaml:"lastmod,omitempty"`
	ChangeFreq string  `yaml:"changefreq,omitempty"`
	Priority   float64 `yaml:"priority,omitempty"`
}

type Manifest struct {
	Pages []Page `yaml:"pages"`
}

func ParseManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, xerrors.Wrap(err, "sitemap: parse manifest")
	}
	for i, p := range m.Pages {
		if strings.TrimSpace(p.Path) == "" {
			return nil, xerrors.Newf("sitemap: manifest page %d has no path", i)
		}
		if p.LastMod != "" {
			if _, err := time.Parse(dateLayout, p.LastMod); err != nil {
				return nil, xerrors.Wrapf(err, "sitemap: manifest page %q lastmod", p.Path)
			}
		}
	}
	return &m, nil
}

type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// Build lists the static pages followed by manifest pages sorted by path.
// A manifest page with the same path as a static page overrides it.
// Pages without a lastmod use today's UTC date.
func Build(baseURL string, m *Manifest, now time.Time) URLSet {
	today := now.UTC().Format(dateLayout)
	base := strings.TrimRight(baseURL, "/")

	pages := make(map[string]Page, len(StaticPages))
	order := make([]string, 0, len(StaticPages))
	for _, p := range StaticPages {
		pages[p] = defaultPage(p)
		order = append(order, p)
	}

	if m != nil {
		var extra []string
		for _, p := range m.Pages {
			key := normalizePath(p.Path)
			def := defaultPage(key)
			if p.ChangeFreq == "" {
				p.ChangeFreq = def.ChangeFreq
			}
			if p.Priority == 0 {
				p.Priority = def.Priority
			}
			if _, seen := pages[key]; !seen {
				extra = append(extra, key)
			}
			p.Path = key
			pages[key] = p
		}
		sort.Strings(extra)
		order = append(order, extra...)
	}

	set := URLSet{XMLNS: Namespace, URLs: make([]URL, 0, len(order))}
	for _, key := range order {
		p := pages[key]
		lastmod := p.LastMod
		if lastmod == "" {
			lastmod = today
		}
		set.URLs = append(set.URLs, URL{
			Loc:        loc(base, key),
			LastMod:    lastmod,
			ChangeFreq: p.ChangeFreq,
			Priority:   strconv.FormatFloat(p.Priority, 'f', 1, 64),
		})
	}
	return set
}

// Marshal renders set as an indented XML document with declaration.
func Marshal(set URLSet) ([]byte, error) {
	b, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, xerrors.Wrap(err, "sitemap: marshal")
	}
	out := make([]byte, 0, len(xml.Header)+len(b)+1)
	out = append(out, xml.Header...)
	out = append(out, b...)
	return append(out, '\n'), nil
}

func defaultPage(path string) Page {
	if path == "" {
		return Page{Path: path, ChangeFreq: "weekly", Priority: 1.0}
	}
	return Page{Path: path, ChangeFreq: "monthly", Priority: 0.8}
}

func normalizePath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

// loc uses the trailing-slash form the site handler serves without a redirect.
func loc(base, path string) string {
	if path == "" {
		return base + "/"
	}
	return base + "/" + path + "/"
}
