// Package prompt assembles the chat assistant's system prompt from the
// owner's profile, a configurable template and retrieved knowledge.
package prompt

import (
	"fmt"
	"strings"
)

// Profile describes the portfolio owner. Empty fields are treated as unknown.
type Profile struct {
	Name                string `json:"name,omitempty"`
	Profession          string `json:"profession,omitempty"`
	Experience          string `json:"experience,omitempty"`
	Field               string `json:"field,omitempty"`
	ProfessionalSummary string `json:"professional_summary,omitempty"`
}

// Part is one piece of a chat message.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message is one chat turn.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts,omitempty"`
}

const knowledgeInstruction = "Use the following information to answer the user's question. " +
	"If the information doesn't contain the answer, say so honestly."

// BuildSystemPrompt resolves template placeholders ({name}, {profession},
// {experience}, {field}) against profile, falling back to a default persona
// when template is blank. A nil profile omits the Profile section; an empty
// ragContext omits the Relevant Knowledge section.
func BuildSystemPrompt(profile *Profile, template, ragContext string) string {
	var p Profile
	if profile != nil {
		p = *profile
	}

	var b strings.Builder
	if strings.TrimSpace(template) != "" {
		r := strings.NewReplacer(
			"{name}", or(p.Name, "the user"),
			"{profession}", or(p.Profession, "a professional"),
			"{experience}", or(p.Experience, "several"),
			"{field}", or(p.Field, "their field"),
		)
		b.WriteString(r.Replace(template))
	} else {
		fmt.Fprintf(&b, "You are %s's Portfolio Assistant. "+
			"You are a helpful assistant that answers questions about their work and experience.",
			or(p.Name, "the user"))
	}

	if profile != nil {
		b.WriteString("\n\n## Profile\n")
		b.WriteString(strings.Join([]string{
			"Name: " + or(p.Name, "Unknown"),
			"Profession: " + or(p.Profession, "Unknown"),
			"Years of Experience: " + or(p.Experience, "Unknown"),
			"Field: " + or(p.Field, "Unknown"),
			"Professional Summary: " + or(p.ProfessionalSummary, "Not available."),
		}, "\n"))
	}

	if ragContext != "" {
		b.WriteString("\n\n## Relevant Knowledge\n")
		b.WriteString(knowledgeInstruction)
		b.WriteString("\n\n")
		b.WriteString(ragContext)
	}

	return b.String()
}

// LatestUserText returns the text parts of the most recent user message
// joined by spaces, or "" if there is none.
func LatestUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		var texts []string
		for _, part := range messages[i].Parts {
			if part.Type == "text" {
				texts = append(texts, part.Text)
			}
		}
		return strings.Join(texts, " ")
	}
	return ""
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
