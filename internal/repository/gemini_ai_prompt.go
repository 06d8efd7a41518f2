package repository

import (
	"fmt"
	"strings"

	"insight-reports/internal/dto"
)

func (r *geminiRepository) buildPrompt(req dto.GenerationRequest) string {
	var sb strings.Builder

	if req.Mode == dto.ModeDeep {
		sb.WriteString("You are a senior analytics expert creating a comprehensive, executive-ready report.\n\n")
	} else {
		sb.WriteString("You are an analytics expert generating a quick, focused report.\n\n")
	}

	sb.WriteString(fmt.Sprintf("**Report Name:** %s\n", req.ReportName))
	if req.Description != "" {
		sb.WriteString(fmt.Sprintf("**Description:** %s\n", req.Description))
	}
	sb.WriteString(fmt.Sprintf("**Query:** %s\n", req.Query))
	if req.OwnerRole != "" {
		sb.WriteString(fmt.Sprintf("**Audience:** %s\n", req.OwnerRole))
	}

	sb.WriteString(`
Structure the response under exactly these four headings:
1. Summary
2. Key Metrics
3. Insights
4. Recommendations

Format the response so it can be shared directly in a team chat.
`)

	switch req.Frequency {
	case "daily":
		sb.WriteString("\nThis is a daily report. Focus on today's data and recent trends. Keep it terse, under 500 words.\n")
	case "weekly":
		sb.WriteString("\nThis is a weekly report. Focus on this week's data and compare with previous weeks.\n")
	case "monthly":
		sb.WriteString("\nThis is a monthly report. Provide a comprehensive view of the month with trends, seasonality and period-over-period comparisons.\n")
	}

	if req.Mode == dto.ModeDeep {
		sb.WriteString("\nProvide deep analysis with statistical insights and make recommendations actionable for executives.\n")
	}

	return sb.String()
}
