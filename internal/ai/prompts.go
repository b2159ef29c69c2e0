package ai

import "strings"

// Built-in prompts. Each can be replaced through the ai.<operation>.prompts
// config keys or the shared ai.persona key.
const (
	DefaultPersona = "You are an expert resume writer."

	DefaultTailorInstruction = "First, move the most relevant items to the top of each section, then reword all entries concisely. Do not add new information."

	DefaultExplainInstruction = "Based on the tailored resume and job posting, here are the items highlighted and why:"

	DefaultEditInstruction = "Tweak the existing tailored resume per user request, maintaining format."

	DefaultExtractSystem = "You are an assistant that extracts structured metadata."

	// DefaultExtractUser receives the job posting through its single %s verb.
	DefaultExtractUser = "Please extract metadata from the following job posting.\n\n%s"
)

const (
	MetadataFunctionName        = "extract_metadata"
	MetadataFunctionDescription = "Extract the company name and job title from a job posting."
)

func buildTailorMessages(persona, instruction, resume, posting string) []Message {
	return []Message{
		{Role: RoleSystem, Content: persona},
		{Role: RoleSystem, Content: instruction},
		{Role: RoleSystem, Content: "Resume:\n" + resume},
		{Role: RoleSystem, Content: "Job Posting:\n" + posting},
	}
}

func buildExplainMessages(persona, instruction, tailored, posting string) []Message {
	return []Message{
		{Role: RoleSystem, Content: persona},
		{Role: RoleSystem, Content: instruction},
		{Role: RoleSystem, Content: "Tailored Resume:\n" + tailored},
		{Role: RoleSystem, Content: "Job Posting:\n" + posting},
	}
}

func buildEditMessages(persona, instruction, tailored, edit string) []Message {
	return []Message{
		{Role: RoleSystem, Content: persona},
		{Role: RoleSystem, Content: instruction},
		{Role: RoleSystem, Content: "Tailored Resume:\n" + tailored},
		{Role: RoleUser, Content: edit},
	}
}

func buildExtractMessages(system, userTemplate, posting string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: fillTemplate(userTemplate, posting)},
	}
}

// fillTemplate substitutes value for the single %s of a template; other
// text, including a literal %, is kept as written. Templates without a
// placeholder get the value appended.
func fillTemplate(template, value string) string {
	if strings.Count(template, "%s") == 1 {
		return strings.Replace(template, "%s", value, 1)
	}
	return template + "\n\n" + value
}

// resolvePrompt returns the first non-empty candidate.
func resolvePrompt(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
