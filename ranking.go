package main

import (
	"regexp"
	"sort"
	"strings"
)

// rankingMarker opens the structured ranking section judges are instructed
// to finish with
const rankingMarker = "FINAL RANKING:"

// responseLabelPattern matches the "Response X" tokens used to present
// anonymized transcripts to judges
var responseLabelPattern = regexp.MustCompile(`Response ([A-J])`)

// parseRanking extracts an ordered list of labels from a judge's free-form
// reply. Primary strategy: read labels from the FINAL RANKING section.
// Fallback: scan the whole text and treat first-occurrence order as the
// implied ranking. Fewer than two distinct valid labels is a parse failure.
func parseRanking(raw string, validLabels []string) ([]string, error) {
	valid := make(map[string]bool, len(validLabels))
	for _, label := range validLabels {
		valid[label] = true
	}

	if _, section, found := strings.Cut(raw, rankingMarker); found {
		if labels := extractLabels(section, valid); len(labels) >= 2 {
			return labels, nil
		}
	}

	labels := extractLabels(raw, valid)
	if len(labels) < 2 {
		return nil, &RankingParseError{Found: len(labels)}
	}
	return labels, nil
}

// extractLabels collects valid labels in first-occurrence order, ignoring
// duplicates and labels outside the valid set
func extractLabels(text string, valid map[string]bool) []string {
	var ordered []string
	seen := make(map[string]bool)
	for _, match := range responseLabelPattern.FindAllStringSubmatch(text, -1) {
		label := match[1]
		if !valid[label] || seen[label] {
			continue
		}
		seen[label] = true
		ordered = append(ordered, label)
	}
	return ordered
}

// aggregateRankings combines per-judge orderings into one aggregate
// ordering. A label's averageRank is the mean of its 1-based positions
// across the submissions that mention it; absence from a submission
// contributes nothing rather than a worst-case penalty. Labels no judge
// ranked are omitted entirely. Ordering is ascending averageRank, ties
// broken by higher voteCount, then lexical participant id, which makes the
// result invariant under any permutation of the submissions.
func aggregateRankings(submissions []RankingSubmission, reveal map[string]string) []AggregateRanking {
	positions := make(map[string][]int)
	for _, sub := range submissions {
		for idx, label := range sub.RankedLabels {
			if _, ok := reveal[label]; ok {
				positions[label] = append(positions[label], idx+1)
			}
		}
	}

	aggregate := make([]AggregateRanking, 0, len(positions))
	for label, ranks := range positions {
		sum := 0
		for _, rank := range ranks {
			sum += rank
		}
		aggregate = append(aggregate, AggregateRanking{
			Label:         label,
			ParticipantID: reveal[label],
			AverageRank:   float64(sum) / float64(len(ranks)),
			VoteCount:     len(ranks),
		})
	}

	sort.Slice(aggregate, func(i, j int) bool {
		if aggregate[i].AverageRank != aggregate[j].AverageRank {
			return aggregate[i].AverageRank < aggregate[j].AverageRank
		}
		if aggregate[i].VoteCount != aggregate[j].VoteCount {
			return aggregate[i].VoteCount > aggregate[j].VoteCount
		}
		return aggregate[i].ParticipantID < aggregate[j].ParticipantID
	})

	return aggregate
}

// unrankedLabels lists the anonymized labels that appear in no aggregate
// entry, sorted for stable metadata
func unrankedLabels(reveal map[string]string, aggregate []AggregateRanking) []string {
	ranked := make(map[string]bool, len(aggregate))
	for _, entry := range aggregate {
		ranked[entry.Label] = true
	}

	var unranked []string
	for label := range reveal {
		if !ranked[label] {
			unranked = append(unranked, label)
		}
	}
	sort.Strings(unranked)
	return unranked
}
