// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	noiseSelector   = "script, style, noscript, nav, footer, header, ads, .ads, #ads, .cookie-banner"
	contentSelector = "article, main, .content, .post-content, #content, .js-content"
)

var errNoText = errors.New("page has no text")

// MainText parses an HTML document, drops navigation and ad noise, and
// returns the text of its content containers, or of the whole body when no
// container matches. Runs of whitespace collapse to a single space.
func MainText(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	var text string
	// Nested matches (an article inside main) would repeat text, so only
	// the outermost containers count.
	containers := doc.Find(contentSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(contentSelector).Length() == 0
	})
	if containers.Length() > 0 {
		parts := make([]string, 0, containers.Length())
		containers.Each(func(_ int, s *goquery.Selection) {
			parts = append(parts, s.Text())
		})
		text = collapseWhitespace(strings.Join(parts, " "))
	}
	if text == "" {
		text = collapseWhitespace(doc.Find("body").Text())
	}
	if text == "" {
		return "", errNoText
	}
	return text, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
