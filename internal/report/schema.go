package report

import "encoding/json"

var (
	entityTypes     = []string{"person", "company", "brand", "product", "website", "other"}
	sourceTypes     = []string{"news", "blog", "social", "forum", "review", "official", "directory", "other"}
	relevanceLevels = []string{"high", "medium", "low"}
	visibilityTiers = []string{"excellent", "good", "fair", "poor"}
	priorities      = []string{"critical", "high", "medium", "low"}
	categories      = []string{"content", "technical", "on_page", "off_page", "local", "social"}
	effortLevels    = []string{"low", "medium", "high"}
)

// BuildReportJSONSchema returns the report JSON Schema (draft 2020-12) as a generic map.
// It is sent to the model as the output contract and compiled locally for validation.
func BuildReportJSONSchema() map[string]any {
	meta := object(map[string]any{
		"entity_name":      map[string]any{"type": "string", "minLength": 1},
		"entity_type":      enumProp(entityTypes),
		"analysis_date":    map[string]any{"type": "string"},
		"confidence_score": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
	}, "entity_name", "entity_type", "analysis_date", "confidence_score")

	source := object(map[string]any{
		"url":         map[string]any{"type": "string", "minLength": 1},
		"title":       map[string]any{"type": "string"},
		"domain":      map[string]any{"type": "string"},
		"source_type": enumProp(sourceTypes),
		"relevance":   enumProp(relevanceLevels),
	}, "url", "title", "domain", "source_type", "relevance")

	inventory := object(map[string]any{
		"total_sources": map[string]any{"type": "integer", "minimum": 0},
		"source_types":  stringArray(),
		"sources":       map[string]any{"type": "array", "items": source},
	}, "total_sources", "source_types", "sources")

	summary := object(map[string]any{
		"overall_score":  map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"visibility":     enumProp(visibilityTiers),
		"key_strengths":  stringArray(),
		"key_weaknesses": stringArray(),
	}, "overall_score", "visibility", "key_strengths", "key_weaknesses")

	recommendation := object(map[string]any{
		"title":           map[string]any{"type": "string", "minLength": 1},
		"description":     map[string]any{"type": "string"},
		"priority":        enumProp(priorities),
		"category":        enumProp(categories),
		"effort":          enumProp(effortLevels),
		"expected_impact": map[string]any{"type": "string"},
	}, "title", "description", "priority", "category", "effort", "expected_impact")

	root := object(map[string]any{
		"meta":            meta,
		"inventory":       inventory,
		"summary":         summary,
		"recommendations": map[string]any{"type": "array", "items": recommendation},
	}, "meta", "inventory", "summary", "recommendations")
	root["$schema"] = "https://json-schema.org/draft/2020-12/schema"
	return root
}

// SchemaJSON returns the report schema as indented JSON, for embedding in prompts.
func SchemaJSON() string {
	b, _ := json.MarshalIndent(BuildReportJSONSchema(), "", "  ")
	return string(b)
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

func enumProp(values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}
