package sitemap

import (
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

var testNow = time.Date(2024, 5, 20, 23, 30, 0, 0, time.FixedZone("CLT", -4*3600))

func TestBuild_StaticPages(t *testing.T) {
	set := Build("https://devint.cl/", nil, testNow)

	if set.XMLNS != Namespace {
		t.Fatalf("xmlns = %q", set.XMLNS)
	}
	if len(set.URLs) != len(StaticPages) {
		t.Fatalf("urls = %d, want %d", len(set.URLs), len(StaticPages))
	}

	home := set.URLs[0]
	if home.Loc != "https://devint.cl/" || home.Priority != "1.0" || home.ChangeFreq != "weekly" {
		t.Fatalf("home = %+v", home)
	}
	// UTC date, not local
	if home.LastMod != "2024-05-21" {
		t.Fatalf("lastmod = %q, want 2024-05-21", home.LastMod)
	}

	for i, want := range []string{"productos", "servicios", "nosotros", "blog", "contacto"} {
		u := set.URLs[i+1]
		if u.Loc != "https://devint.cl/"+want+"/" {
			t.Errorf("url[%d].Loc = %q", i+1, u.Loc)
		}
		if u.Priority != "0.8" || u.ChangeFreq != "monthly" {
			t.Errorf("url[%d] = %+v", i+1, u)
		}
	}
}

func TestBuild_Manifest(t *testing.T) {
	m := &Manifest{Pages: []Page{
		{Path: "/blog/zeta/"},
		{Path: "blog/alfa", LastMod: "2024-03-01", ChangeFreq: "yearly", Priority: 0.5},
		{Path: "servicios", LastMod: "2024-01-15"},
	}}
	set := Build("https://devint.cl", m, testNow)

	if len(set.URLs) != len(StaticPages)+2 {
		t.Fatalf("urls = %d", len(set.URLs))
	}

	servicios := set.URLs[2]
	if servicios.Loc != "https://devint.cl/servicios/" || servicios.LastMod != "2024-01-15" || servicios.Priority != "0.8" {
		t.Fatalf("override = %+v", servicios)
	}

	alfa, zeta := set.URLs[6], set.URLs[7]
	if alfa.Loc != "https://devint.cl/blog/alfa/" || alfa.ChangeFreq != "yearly" || alfa.Priority != "0.5" {
		t.Fatalf("alfa = %+v", alfa)
	}
	if zeta.Loc != "https://devint.cl/blog/zeta/" || zeta.LastMod != "2024-05-21" || zeta.Priority != "0.8" {
		t.Fatalf("zeta = %+v", zeta)
	}
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
pages:
  - path: blog/bienvenida
    lastmod: 2024-03-01
    changefreq: yearly
    priority: 0.5
`))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(m.Pages) != 1 || m.Pages[0].LastMod != "2024-03-01" || m.Pages[0].Priority != 0.5 {
		t.Fatalf("manifest = %+v", m)
	}

	bad := map[string]string{
		"syntax":   "pages: [",
		"no path":  "pages:\n  - lastmod: 2024-03-01\n",
		"bad date": "pages:\n  - path: x\n    lastmod: ayer\n",
	}
	for name, in := range bad {
		if _, err := ParseManifest([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMarshal(t *testing.T) {
	b, err := Marshal(Build("https://devint.cl", nil, testNow))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing xml declaration: %q", s[:40])
	}
	if !strings.Contains(s, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`) {
		t.Fatalf("missing urlset: %s", s)
	}

	var got URLSet
	if err := xml.Unmarshal(b, &got); err != nil {
		t.Fatalf("output is not valid xml: %v", err)
	}
	if len(got.URLs) != len(StaticPages) {
		t.Fatalf("round trip urls = %d", len(got.URLs))
	}
}
