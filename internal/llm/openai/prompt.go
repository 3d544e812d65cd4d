package openai

import (
	"fmt"
	"strings"

	"powerquality-backend/internal/llm"
)

const summarizeSystemPrompt = `You are a power systems engineer. You receive a sample of a power-quality
measurement CSV (voltage, frequency, harmonics, flicker and similar channels).
Summarize the dataset: channels present, sampling characteristics, value
ranges, and any anomalies (sags, swells, interruptions, harmonic distortion,
frequency excursions). Respond with JSON: {"summary": "<plain-text summary>"}.
Write the summary in the requested language.`

const regulationsSystemPrompt = `You are a compliance specialist for electrical power quality. Given a dataset
summary, identify the regulations and standards the data should be assessed
against (for example EN 50160, IEC 61000-4-30, IEEE 519, grid codes relevant
to the described network). Respond with JSON:
{"regulations": ["<standard or regulation>", ...]}. List the most relevant
first. Use the requested language for any free text.`

const reportSystemPrompt = `You are preparing a power-quality compliance report. Given a dataset summary
and a list of applicable regulations, produce a structured report as JSON:
{"metadata": {"title": string, "author": string, "generatedDate": "YYYY-MM-DD",
"languageCode": string}, "sections": [{"heading": string, "content": string,
"chart": {"title": string, "unit": string, "points": [{"label": string,
"value": number}]} | null}], "bibliography": [string]}.
Sections must cover: executive summary, methodology, per-regulation
compliance assessment with measured values versus limits, and
recommendations. Include a chart only where the summary provides a numeric
series. Write all text in the requested language.`

const chatSystemPrompt = `You are an assistant discussing a power-quality compliance report with the
engineer who requested it. You receive the full report (structured JSON and
rendered MDX) plus the user's message. Answer questions about the data,
regulations and findings. If the user asks for a change to the report,
apply it to the structured report. Respond with JSON:
{"reply": "<your answer>", "reviseReport": bool,
"revisedReport": <full revised structured report or null>}.
Set reviseReport true only when you changed the report; when true,
revisedReport must contain the complete updated report, not a fragment.
Reply in the requested language.`

func summarizeUserPrompt(input llm.SummarizeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", languageOrDefault(input.LanguageCode))
	fmt.Fprintf(&b, "File: %s\n\n", input.FileName)
	b.WriteString("Dataset sample:\n")
	b.WriteString(input.DataPreview)
	return b.String()
}

func regulationsUserPrompt(input llm.RegulationsInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\n", languageOrDefault(input.LanguageCode))
	b.WriteString("Dataset summary:\n")
	b.WriteString(input.DataSummary)
	return b.String()
}

func reportUserPrompt(input llm.ReportInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", languageOrDefault(input.LanguageCode))
	fmt.Fprintf(&b, "Source file: %s\n\n", input.FileName)
	b.WriteString("Dataset summary:\n")
	b.WriteString(input.DataSummary)
	b.WriteString("\n\nApplicable regulations:\n")
	for _, reg := range input.Regulations {
		fmt.Fprintf(&b, "- %s\n", reg)
	}
	return b.String()
}

func chatUserPrompt(input llm.ChatInput, structuredJSON string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", languageOrDefault(input.LanguageCode))
	fmt.Fprintf(&b, "Source file: %s\n\n", input.FileName)
	b.WriteString("Structured report JSON:\n")
	b.WriteString(structuredJSON)
	b.WriteString("\n\nRendered report MDX:\n")
	b.WriteString(input.ReportMdx)
	b.WriteString("\n\nUser message:\n")
	b.WriteString(input.UserInputText)
	return b.String()
}

func languageOrDefault(code string) string {
	if strings.TrimSpace(code) == "" {
		return "en"
	}
	return code
}
