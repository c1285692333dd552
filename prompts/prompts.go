package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"pharma-assistant/web/types"
)

// Embedded prompt files

//go:embed classify_system.txt
var classifySystem string

//go:embed synthesis_system.txt
var synthesisSystem string

// ClassifyPrompt returns the system and user messages for remote intent
// classification.
func ClassifyPrompt(question string) (string, string) {
	return classifySystem, fmt.Sprintf("Question: %s", question)
}

// SynthesisSystem returns the schema-constrained generation instructions.
func SynthesisSystem() string { return synthesisSystem }

// SynthesisUser renders the merged chunk context with per-chunk provenance
// tags, any structured facts, recent turns, and the question itself.
func SynthesisUser(question string, history []string, chunks []types.RetrievedChunk,
	inventory []types.InventoryFact, clinical *types.ExternalFact, activeTopic string) string {

	var b strings.Builder

	b.WriteString("Context passages:\n")
	if len(chunks) == 0 {
		b.WriteString("(none)\n")
	}
	for i, chunk := range chunks {
		tag := fmt.Sprintf("[chunk-%d]", i+1)
		provenance := chunk.Metadata.SubjectName
		if chunk.Metadata.Section != "" {
			provenance += " / " + chunk.Metadata.Section
		}
		if chunk.Metadata.SourceRange != "" {
			provenance += " / " + chunk.Metadata.SourceRange
		}
		fmt.Fprintf(&b, "%s (%s)\n%s\n\n", tag, strings.TrimSpace(provenance), chunk.Content)
	}

	if len(inventory) > 0 {
		b.WriteString("Inventory facts:\n")
		for _, fact := range inventory {
			fmt.Fprintf(&b, "- %s %s: quantity %d, price %.2f", fact.Name, fact.Strength, fact.Quantity, fact.Price)
			if fact.ExpiryDate != "" {
				fmt.Fprintf(&b, ", expires %s", fact.ExpiryDate)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if clinical != nil {
		b.WriteString("Clinical reference facts:\n")
		if clinical.Dosage != "" {
			fmt.Fprintf(&b, "- dosage: %s\n", clinical.Dosage)
		}
		if clinical.Usage != "" {
			fmt.Fprintf(&b, "- usage: %s\n", clinical.Usage)
		}
		if clinical.Warnings != "" {
			fmt.Fprintf(&b, "- warnings: %s\n", clinical.Warnings)
		}
		b.WriteString("\n")
	}

	if len(history) > 0 {
		b.WriteString("Recent conversation (continuity only, not a fact source):\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "- %s\n", turn)
		}
		b.WriteString("\n")
	}

	if activeTopic != "" {
		fmt.Fprintf(&b, "Current topic: %s\n\n", activeTopic)
	}

	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String()
}
