package main

import (
	"math/rand/v2"
)

// labelAlphabet caps the council at ten anonymous labels, one per
// participant allowed by MaxParticipants
const labelAlphabet = "ABCDEFGHIJ"

// anonymizeResponses hides authorship of Stage 1 responses behind
// single-letter labels. Which participant receives which label is shuffled
// on every call, so label order carries no positional information a judge
// could exploit. The returned reveal map translates labels back to
// participants; it stays inside the orchestrator and is never placed in a
// ranking prompt.
func anonymizeResponses(responses []ParticipantResponse) ([]AnonymizedTranscript, map[string]string) {
	order := make([]int, len(responses))
	for i := range order {
		order[i] = i
	}
	rand.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	transcripts := make([]AnonymizedTranscript, 0, len(responses))
	reveal := make(map[string]string, len(responses))
	for pos, idx := range order {
		label := string(labelAlphabet[pos])
		transcripts = append(transcripts, AnonymizedTranscript{
			Label:         label,
			ParticipantID: responses[idx].ParticipantID,
			Text:          responses[idx].Text,
		})
		reveal[label] = responses[idx].ParticipantID
	}

	return transcripts, reveal
}

// transcriptLabels lists transcript labels in presentation order
func transcriptLabels(transcripts []AnonymizedTranscript) []string {
	labels := make([]string, len(transcripts))
	for i, t := range transcripts {
		labels[i] = t.Label
	}
	return labels
}
