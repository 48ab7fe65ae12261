package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TariqKichawele/BrightData/internal/report"
)

// maxRecordBytes caps the rendered size of a single scraper record.
const maxRecordBytes = 12000

// answerFields are tried in order; the first non-empty one becomes the answer body.
var answerFields = []string{"answer_text_markdown", "answer_text", "markdown", "text", "answer_html", "html"}

var headerFields = []string{"url", "title", "prompt"}

var citationFields = []string{"citations", "links_attached", "links", "search_sources"}

// SystemPrompt is the fixed instruction sent with every analysis call.
func SystemPrompt() string {
	return strings.Join([]string{
		"You are an SEO and answer-engine visibility analyst.",
		"You receive the answers an AI assistant gave to a user's question, together with the sources it cited.",
		"Identify the entity the question is about, inventory every cited source, score its visibility from 0 to 100, and give concrete recommendations.",
		"Return ONLY a JSON object that matches this JSON Schema. Do not add fields that are not in the schema.",
		"JSON Schema:",
		report.SchemaJSON(),
	}, "\n")
}

// BuildPrompt renders raw scraper records into the analysis prompt.
// The output depends only on results, so the same input always yields the same prompt.
func BuildPrompt(results []json.RawMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scraped answer data (%d record", len(results))
	if len(results) != 1 {
		b.WriteString("s")
	}
	b.WriteString("):\n")
	for i, raw := range results {
		fmt.Fprintf(&b, "\n## Record %d\n", i+1)
		b.WriteString(truncate(renderRecord(raw), maxRecordBytes))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRecord(raw json.RawMessage) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return "Value: " + compact(raw)
	}

	var b strings.Builder
	used := map[string]bool{}

	for _, key := range headerFields {
		if s, ok := stringField(fields, key); ok {
			fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(key[:1])+key[1:], s)
			used[key] = true
		}
	}

	for _, key := range answerFields {
		s, ok := stringField(fields, key)
		if !ok {
			continue
		}
		if strings.HasSuffix(key, "html") {
			s = htmlToMarkdown(s)
			if s == "" {
				continue
			}
		}
		b.WriteString("### Answer\n")
		b.WriteString(s)
		b.WriteString("\n")
		break
	}
	for _, key := range answerFields {
		used[key] = true
	}

	for _, key := range citationFields {
		v, ok := fields[key]
		if !ok {
			continue
		}
		used[key] = true
		lines := renderLinks(v)
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", strings.ReplaceAll(key, "_", " "))
		for _, l := range lines {
			b.WriteString("- " + l + "\n")
		}
	}

	var rest []string
	for key := range fields {
		if !used[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	if len(rest) > 0 {
		b.WriteString("### Other fields\n")
		for _, key := range rest {
			v := compact(fields[key])
			if v == "null" || v == `""` {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderLinks formats an array of link objects or URL strings.
func renderLinks(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var link map[string]json.RawMessage
		if json.Unmarshal(item, &link) != nil {
			continue
		}
		url, _ := stringField(link, "url")
		if url == "" {
			url, _ = stringField(link, "link")
		}
		title, _ := stringField(link, "title")
		domain, _ := stringField(link, "domain")
		line := url
		if title != "" {
			line = fmt.Sprintf("[%s](%s)", title, url)
		}
		if domain != "" {
			line += " (" + domain + ")"
		}
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// truncate cuts s to maxBytes without splitting UTF-8 runes.
func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes] + "\n[truncated]"
}
