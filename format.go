package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatMarkdown renders a deliberation result as a human-readable
// narrative. The result is read, never modified.
func FormatMarkdown(result *DeliberationResult) string {
	var b strings.Builder

	b.WriteString("# Council Deliberation\n\n")
	b.WriteString(fmt.Sprintf("**Question**: %s\n\n", result.Request.Question))

	b.WriteString("## Stage 1: Individual Responses\n\n")
	for _, resp := range result.Responses {
		if resp.Succeeded {
			b.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", resp.ParticipantID, resp.Text))
		} else {
			b.WriteString(fmt.Sprintf("### %s (failed: %s)\n\n_No response._\n\n", resp.ParticipantID, resp.ErrorKind))
		}
	}

	if len(result.Aggregate) > 0 {
		b.WriteString("## Stage 2: Aggregate Peer Ranking\n\n")
		for i, entry := range result.Aggregate {
			b.WriteString(fmt.Sprintf("%d. **%s** (avg rank %.2f, %d votes)\n",
				i+1, entry.ParticipantID, entry.AverageRank, entry.VoteCount))
		}
		if unranked := unrankedParticipants(result.Metadata); len(unranked) > 0 {
			b.WriteString(fmt.Sprintf("\nUnranked by all judges: %s\n", strings.Join(unranked, ", ")))
		}
		b.WriteString("\n")
	}

	if result.Synthesis != nil {
		b.WriteString("## Stage 3: Final Synthesis\n\n")
		b.WriteString(result.Synthesis.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("---\n")
	if result.Status == StatusFailed {
		b.WriteString(fmt.Sprintf("Status: failed at %s (%s)\n", result.FailedStage, result.FailureKind))
	} else {
		b.WriteString("Status: complete\n")
	}
	b.WriteString(fmt.Sprintf("Participants: %d/%d responded\n",
		result.Metadata.Stage1Succeeded, result.Metadata.Stage1Total))
	b.WriteString(fmt.Sprintf("Duration: %.1fs\n", result.Metadata.Elapsed.Seconds()))
	if result.Synthesis != nil {
		b.WriteString(fmt.Sprintf("Confidence: %.0f%%\n", result.Synthesis.Confidence*100))
	}

	return b.String()
}

// unrankedParticipants resolves unranked labels back to participant ids
// for display
func unrankedParticipants(meta RunMetadata) []string {
	var ids []string
	for _, label := range meta.UnrankedLabels {
		if id, ok := meta.LabelToParticipant[label]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// FormatJSON renders a deliberation result as indented JSON
func FormatJSON(result *DeliberationResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
