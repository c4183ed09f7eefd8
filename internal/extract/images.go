package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var placeholderMarkers = []string{"dummy", "pixel"}

var imageMarkers = []string{".jpg", ".jpeg", ".png", ".webp", "getimage.ashx"}

// IsPlaceholder reports whether an image reference points at a tracking
// pixel or a dummy image.
func IsPlaceholder(raw string) bool {
	for _, m := range placeholderMarkers {
		if strings.Contains(raw, m) {
			return true
		}
	}
	return false
}

// LooksLikeImage reports whether a URL plausibly serves a raster image the
// vision model can read.
func LooksLikeImage(u string) bool {
	l := strings.ToLower(u)
	for _, m := range imageMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// NormalizeDisplayURL pins the display parameters of the municipal image
// handler so the same picture always yields the same URL. Other URLs are
// returned unchanged.
func NormalizeDisplayURL(raw string) string {
	if !strings.Contains(raw, "GetImage.ashx") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("mode", "T")
	q.Set("height", "600")
	q.Set("width", "800")
	q.Set("cropping", "NONE")
	u.RawQuery = q.Encode()
	return u.String()
}

// ImageCandidate returns the raw image reference carried by sel: the first
// <img> (sel itself or a descendant) via data-src, then src unless it is an
// inline data URI, then the first srcset URL of a <picture><source>.
func ImageCandidate(sel *goquery.Selection) string {
	img := sel
	if goquery.NodeName(sel) != "img" {
		img = sel.Find("img").First()
	}
	if img.Length() > 0 {
		if v := strings.TrimSpace(img.AttrOr("data-src", "")); v != "" {
			return v
		}
		if v := strings.TrimSpace(img.AttrOr("src", "")); v != "" && !strings.Contains(v, "data:") {
			return v
		}
	}

	pic := sel
	if goquery.NodeName(sel) != "picture" {
		pic = sel.Find("picture").First()
	}
	srcset := strings.TrimSpace(pic.Find("source").First().AttrOr("srcset", ""))
	if srcset == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(srcset, ",")[0])
	if fields := strings.Fields(first); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// BestImage resolves the candidate of sel against base. It returns "" for
// placeholders and unresolvable references.
func BestImage(sel *goquery.Selection, base *url.URL) string {
	raw := ImageCandidate(sel)
	if raw == "" || IsPlaceholder(raw) {
		return ""
	}
	abs := Resolve(base, raw)
	if abs == "" {
		return ""
	}
	return NormalizeDisplayURL(abs)
}

// Resolve makes ref absolute against base. It returns "" when ref cannot be parsed.
func Resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		if !u.IsAbs() {
			return ""
		}
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// ImageSelection is the outcome of SelectImages.
type ImageSelection struct {
	Primary string
	// URLs is deduplicated with Primary first when set.
	URLs []string
}

// SelectImages picks the primary image of a detail page and collects its
// gallery. Priority: the og:image meta tag unless it is a placeholder, then
// the first image of the .bemTextImageContainer block inside content, then the
// first usable image found scanning content.
func SelectImages(doc *goquery.Document, content *goquery.Selection, base *url.URL) ImageSelection {
	var primary string

	if og := strings.TrimSpace(doc.Find(`meta[property="og:image"]`).First().AttrOr("content", "")); og != "" && !IsPlaceholder(og) {
		primary = NormalizeDisplayURL(Resolve(base, og))
	}

	if primary == "" {
		if cont := content.Find(".bemTextImageContainer").First(); cont.Length() > 0 {
			primary = BestImage(cont, base)
		}
	}

	var gallery []string
	content.Find("img").Each(func(_ int, s *goquery.Selection) {
		if cand := BestImage(s, base); cand != "" {
			gallery = append(gallery, cand)
		}
	})
	if primary == "" && len(gallery) > 0 {
		primary = gallery[0]
	}

	var urls []string
	seen := make(map[string]bool)
	for _, u := range append([]string{primary}, gallery...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return ImageSelection{Primary: primary, URLs: urls}
}
