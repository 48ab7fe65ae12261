package analysis

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	boilerplateTags  = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, button, input"
	boilerplateRoles = `[role="navigation"], [role="banner"], [role="contentinfo"], [aria-modal]`
	boilerplateWords = []string{"cookie", "consent", "navbar", "menu-", "share", "signup", "login", "advert", "promo", "modal", "popup", "sidebar"}
	blankRuns        = regexp.MustCompile(`\n{3,}`)
)

// htmlToMarkdown converts scraped HTML to markdown after dropping page chrome.
// It returns "" when the input cannot be parsed or converted.
func htmlToMarkdown(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var content *goquery.Selection
	for _, sel := range []string{"main", `[role="main"]`, "article", "#content"} {
		if found := doc.Find(sel); found.Length() > 0 {
			content = found.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}

	content.Find(boilerplateTags).Remove()
	content.Find(boilerplateRoles).Remove()
	content.Find("[class], [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		lower := strings.ToLower(class + " " + id)
		for _, w := range boilerplateWords {
			if strings.Contains(lower, w) {
				s.Remove()
				return
			}
		}
	})

	body, err := content.Html()
	if err != nil {
		return ""
	}
	out, err := md.NewConverter("", true, nil).ConvertString(body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(out, "\n\n"))
}
