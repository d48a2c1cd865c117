package tiktok

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Feed containers TikTok marks with data-e2e. Player containers embed a
// <video>; link containers only point at the video page.
const (
	playerContainer = `div[data-e2e="recommend-list-item-container"]`
	linkContainers  = `div[data-e2e="user-post-item"], div[data-e2e="challenge-item"], div[data-e2e="music-item"]`
)

// ScrapeMarkup recovers {id, title, url} for every visible feed item.
// Items missing any of the three are skipped.
func ScrapeMarkup(doc *goquery.Document) []MarkupItem {
	items := []MarkupItem{}
	if doc == nil {
		return items
	}
	doc.Find(playerContainer + ", " + linkContainers).Each(func(_ int, c *goquery.Selection) {
		var item MarkupItem
		if c.Is(playerContainer) {
			item = playerItem(c)
		} else {
			item = linkItem(c)
		}
		if item.ID != "" && item.Title != "" && item.URL != "" {
			items = append(items, item)
		}
	})
	return items
}

func playerItem(c *goquery.Selection) MarkupItem {
	id, _ := c.Attr("data-video-id")
	if id == "" {
		id, _ = c.Find("[data-video-id]").First().Attr("data-video-id")
	}

	video := c.Find("video").First()
	src, _ := video.Attr("src")
	if src == "" {
		src, _ = video.Find("source").First().Attr("src")
	}

	return MarkupItem{
		ID:    strings.TrimSpace(id),
		Title: strings.TrimSpace(c.Find(`[data-e2e="video-desc"]`).First().Text()),
		URL:   strings.TrimSpace(src),
	}
}

func linkItem(c *goquery.Selection) MarkupItem {
	link := c.Find(`a[href*="/video/"]`).First()
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)

	title, _ := c.Find("img[alt]").First().Attr("alt")
	if strings.TrimSpace(title) == "" {
		title = c.Find(`[data-e2e="video-desc"]`).First().Text()
	}

	return MarkupItem{
		ID:    videoIDFromHref(href),
		Title: strings.TrimSpace(title),
		URL:   href,
	}
}

// videoIDFromHref returns the last path segment of a /video/<id> link.
func videoIDFromHref(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	id := path.Base(strings.TrimSuffix(u.Path, "/"))
	if id == "." || id == "/" || id == "video" {
		return ""
	}
	return id
}

func parseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
