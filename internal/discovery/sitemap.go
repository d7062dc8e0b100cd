package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// sitemapIndex and urlSet cover both sitemap.xml shapes.
type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []string `xml:"url>loc"`
}

const maxSitemapURLs = 500

// FetchSitemap retrieves /sitemap.xml for the base URL's origin and returns
// the listed URLs. Index sitemaps are followed one level deep. Any failure
// returns an empty slice; the sitemap is backfill, never required.
func FetchSitemap(ctx context.Context, baseURL string) []string {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", parsed.Scheme, parsed.Host)

	client := &http.Client{Timeout: 10 * time.Second}

	body, err := fetchXML(ctx, client, sitemapURL)
	if err != nil {
		return nil
	}

	var urls []string

	var set urlSet
	if xml.Unmarshal(body, &set) == nil && len(set.URLs) > 0 {
		urls = append(urls, set.URLs...)
	}

	var index sitemapIndex
	if len(urls) == 0 && xml.Unmarshal(body, &index) == nil {
		for _, ref := range index.Sitemaps {
			if len(urls) >= maxSitemapURLs {
				break
			}
			child, err := fetchXML(ctx, client, ref.Loc)
			if err != nil {
				continue
			}
			var childSet urlSet
			if xml.Unmarshal(child, &childSet) == nil {
				urls = append(urls, childSet.URLs...)
			}
		}
	}

	if len(urls) > maxSitemapURLs {
		urls = urls[:maxSitemapURLs]
	}
	return urls
}

func fetchXML(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}
