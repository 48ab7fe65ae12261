// Package reporttest provides report fixtures for tests.
package reporttest

import (
	"encoding/json"

	"github.com/TariqKichawele/BrightData/pkg/models"
)

// ValidJSON is a complete report that passes schema validation.
const ValidJSON = `{
  "meta": {
    "entity_name": "Acme Corp",
    "entity_type": "company",
    "analysis_date": "2026-10-18",
    "confidence_score": 0.8
  },
  "inventory": {
    "total_sources": 2,
    "source_types": ["news", "official"],
    "sources": [
      {"url": "https://news.example.com/acme", "title": "Acme in the news", "domain": "news.example.com", "source_type": "news", "relevance": "high"},
      {"url": "https://acme.example.com", "title": "Acme", "domain": "acme.example.com", "source_type": "official", "relevance": "medium"}
    ]
  },
  "summary": {
    "overall_score": 72,
    "visibility": "good",
    "key_strengths": ["official site is cited"],
    "key_weaknesses": ["few third-party reviews"]
  },
  "recommendations": [
    {"title": "Collect reviews", "description": "Encourage reviews on major directories.", "priority": "medium", "category": "off_page", "effort": "medium", "expected_impact": "Broader citation base"}
  ]
}`

// InvalidJSON is well-formed JSON that fails schema validation.
const InvalidJSON = `{"meta": {"entity_name": "Acme"}, "summary": {"overall_score": "high"}}`

// Valid returns ValidJSON decoded into a fresh Report.
func Valid() *models.Report {
	var r models.Report
	if err := json.Unmarshal([]byte(ValidJSON), &r); err != nil {
		panic(err)
	}
	return &r
}
