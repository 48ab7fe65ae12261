package models

// Report is the SEO visibility report produced by the analysis step.
// Instances only exist after passing report.Validator.
type Report struct {
	Meta            ReportMeta       `json:"meta"`
	Inventory       SourceInventory  `json:"inventory"`
	Summary         ReportSummary    `json:"summary"`
	Recommendations []Recommendation `json:"recommendations"`
}

type ReportMeta struct {
	EntityName      string  `json:"entity_name"`
	EntityType      string  `json:"entity_type"`
	AnalysisDate    string  `json:"analysis_date"`
	ConfidenceScore float64 `json:"confidence_score"`
}

type SourceInventory struct {
	TotalSources int      `json:"total_sources"`
	SourceTypes  []string `json:"source_types"`
	Sources      []Source `json:"sources"`
}

type Source struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Domain     string `json:"domain"`
	SourceType string `json:"source_type"`
	Relevance  string `json:"relevance"`
}

type ReportSummary struct {
	OverallScore  int      `json:"overall_score"`
	Visibility    string   `json:"visibility"`
	KeyStrengths  []string `json:"key_strengths"`
	KeyWeaknesses []string `json:"key_weaknesses"`
}

type Recommendation struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Priority       string `json:"priority"`
	Category       string `json:"category"`
	Effort         string `json:"effort"`
	ExpectedImpact string `json:"expected_impact"`
}
