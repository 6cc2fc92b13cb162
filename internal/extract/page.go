package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMetadata holds the descriptive meta tags of a page.
type PageMetadata struct {
	Description   string `json:"description,omitempty"`
	Keywords      string `json:"keywords,omitempty"`
	Author        string `json:"author,omitempty"`
	OGTitle       string `json:"og_title,omitempty"`
	OGDescription string `json:"og_description,omitempty"`
	OGImage       string `json:"og_image,omitempty"`
}

// Link is an anchor with a non-empty href.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Image is an img element with a non-empty src.
type Image struct {
	URL   string `json:"url"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// ExtractTitle returns the trimmed <title>, or "" when absent.
func ExtractTitle(html string) string {
	doc := parse(html)
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// ExtractMetadata reads description, keywords, author and the Open Graph
// title/description/image from meta tags.
func ExtractMetadata(html string) PageMetadata {
	var md PageMetadata
	doc := parse(html)
	if doc == nil {
		return md
	}
	md.Description = metaContent(doc, `meta[name="description"]`)
	md.Keywords = metaContent(doc, `meta[name="keywords"]`)
	md.Author = metaContent(doc, `meta[name="author"]`)
	md.OGTitle = metaContent(doc, `meta[property="og:title"]`)
	md.OGDescription = metaContent(doc, `meta[property="og:description"]`)
	md.OGImage = metaContent(doc, `meta[property="og:image"]`)
	return md
}

func metaContent(doc *goquery.Document, sel string) string {
	v, _ := doc.Find(sel).First().Attr("content")
	return strings.TrimSpace(v)
}

// ExtractLinks returns every anchor with an href, in document order.
func ExtractLinks(html string) []Link {
	doc := parse(html)
	if doc == nil {
		return nil
	}
	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		links = append(links, Link{URL: href, Text: CleanText(s.Text())})
	})
	return links
}

// ExtractImages returns every image with a src, in document order.
func ExtractImages(html string) []Image {
	doc := parse(html)
	if doc == nil {
		return nil
	}
	var images []Image
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		src = strings.TrimSpace(src)
		if src == "" {
			return
		}
		alt, _ := s.Attr("alt")
		title, _ := s.Attr("title")
		images = append(images, Image{URL: src, Alt: strings.TrimSpace(alt), Title: strings.TrimSpace(title)})
	})
	return images
}
