package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Report types with dedicated prompts.
const (
	ReportSitePerformance = "site_performance"
	ReportCRA             = "cra_report"
	ReportRiskAnalysis    = "risk_analysis"
)

const (
	AnalystSystem = "You are an expert clinical data analyst. Generate detailed, professional reports with clear sections, metrics, and actionable recommendations."
	AdvisorSystem = "You are an AI agent specialized in clinical trial operations. Provide specific, prioritized action recommendations based on risk signals and data quality metrics."
)

// QuerySystem builds the assistant instructions. siteCount < 0 means site data
// was not available.
func QuerySystem(siteCount int) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant for a Clinical Data Monitoring System. ")
	if siteCount >= 0 {
		fmt.Fprintf(&b, "\n\nAvailable site data summary: %d sites. ", siteCount)
	}
	b.WriteString("Answer questions about clinical trial data, site performance, patient data quality, and provide actionable insights.")
	return b.String()
}

// ReportPrompt returns the user prompt for a report request.
func ReportPrompt(reportType, siteID string, context map[string]any) string {
	var prompt string
	switch reportType {
	case ReportSitePerformance:
		site := "All Sites"
		if siteID != "" {
			site = siteID
		}
		prompt = fmt.Sprintf("Generate a comprehensive site performance report for Site %s. Include data quality metrics, risk assessment, open issues, and actionable recommendations.", site)
	case ReportCRA:
		prompt = "Generate a CRA (Clinical Research Associate) monitoring report summarizing site visits, follow-up actions, deviation counts, and query resolution status."
	case ReportRiskAnalysis:
		prompt = "Generate a risk analysis report identifying high-risk sites, common patterns in data quality issues, and recommended interventions."
	default:
		prompt = "Generate a report on: " + reportType
	}
	if len(context) > 0 {
		if raw, err := json.Marshal(context); err == nil {
			prompt += "\n\nContext data: " + string(raw)
		}
	}
	return prompt
}

// RecommendationPrompt asks for prioritized actions for one site or all sites.
func RecommendationPrompt(siteID string) string {
	target := "all sites"
	if siteID != "" {
		target = "site " + siteID
	}
	return fmt.Sprintf("Based on the clinical trial data, recommend specific actions for %s. Focus on: 1) Reducing open queries, 2) Improving data quality, 3) Addressing high-risk indicators, 4) Optimizing CRA monitoring activities.", target)
}
