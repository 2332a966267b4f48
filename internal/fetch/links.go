package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"

	"github.com/PuerkitoBio/goquery"
)

// ZipLinks fetches the index page at pageURL and returns the zip
// archive links it advertises, resolved to absolute URLs. Document
// order is preserved and repeated links are dropped.
func (c *Client) ZipLinks(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse index url %s: %w", pageURL, err)
	}

	resp, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: parse index page %s: %w", pageURL, err)
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find(`a[href$=".zip"]`).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})
	return links, nil
}

// ArchiveName derives the local filename for a download URL. The last
// path element is used when present; otherwise a stable digest of the
// URL keeps distinct links from colliding.
func ArchiveName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:]) + ".zip"
}
