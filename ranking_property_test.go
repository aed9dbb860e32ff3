package main

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var propertyLabels = []string{"A", "B", "C", "D"}

var propertyReveal = map[string]string{
	"A": "model/a",
	"B": "model/b",
	"C": "model/c",
	"D": "model/d",
}

// randomSubmissions builds judgeCount submissions, each ranking a random
// non-empty subset of the labels in random order
func randomSubmissions(rng *rand.Rand, judgeCount int, labels []string) []RankingSubmission {
	subs := make([]RankingSubmission, judgeCount)
	for j := range subs {
		ranked := append([]string(nil), labels...)
		rng.Shuffle(len(ranked), func(a, b int) {
			ranked[a], ranked[b] = ranked[b], ranked[a]
		})
		ranked = ranked[:1+rng.IntN(len(ranked))]
		subs[j] = RankingSubmission{
			JudgeID:      fmt.Sprintf("judge%d", j+1),
			RankedLabels: ranked,
		}
	}
	return subs
}

// TestAggregatePermutationInvariance_PropertyBased verifies that the
// aggregate ordering does not depend on the order submissions arrive in.
// Integer position sums commute and every tie resolves through the lexical
// participant id, so any permutation of the same submissions must produce
// an identical aggregate.
func TestAggregatePermutationInvariance_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate is invariant under submission order", prop.ForAll(
		func(seed uint64, judgeCount int) bool {
			rng := rand.New(rand.NewPCG(seed, 0x5eed))
			subs := randomSubmissions(rng, judgeCount, propertyLabels)

			shuffled := append([]RankingSubmission(nil), subs...)
			rng.Shuffle(len(shuffled), func(a, b int) {
				shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
			})

			return reflect.DeepEqual(
				aggregateRankings(subs, propertyReveal),
				aggregateRankings(shuffled, propertyReveal),
			)
		},
		gen.UInt64(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestAggregateOrdering_PropertyBased verifies the full sort contract:
// ascending average rank, ties to the higher vote count, remaining ties to
// the lexically smaller participant id.
func TestAggregateOrdering_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate is sorted best first", prop.ForAll(
		func(seed uint64, judgeCount int) bool {
			rng := rand.New(rand.NewPCG(seed, 0x0dd5))
			subs := randomSubmissions(rng, judgeCount, propertyLabels)

			agg := aggregateRankings(subs, propertyReveal)
			for i := 0; i < len(agg)-1; i++ {
				a, b := agg[i], agg[i+1]
				if a.AverageRank > b.AverageRank {
					return false
				}
				if a.AverageRank == b.AverageRank && a.VoteCount < b.VoteCount {
					return false
				}
				if a.AverageRank == b.AverageRank && a.VoteCount == b.VoteCount &&
					a.ParticipantID >= b.ParticipantID {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestAggregateCoverage_PropertyBased verifies that the aggregate covers
// exactly the labels some judge ranked, with sane vote counts and averages,
// and that unrankedLabels reports precisely the complement.
func TestAggregateCoverage_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("entries cover exactly the ranked labels", prop.ForAll(
		func(seed uint64, judgeCount int) bool {
			rng := rand.New(rand.NewPCG(seed, 0xc0de))
			subs := randomSubmissions(rng, judgeCount, propertyLabels)

			ranked := make(map[string]bool)
			for _, sub := range subs {
				for _, label := range sub.RankedLabels {
					ranked[label] = true
				}
			}

			agg := aggregateRankings(subs, propertyReveal)
			if len(agg) != len(ranked) {
				return false
			}
			for _, entry := range agg {
				if !ranked[entry.Label] {
					return false
				}
				if entry.VoteCount < 1 || entry.VoteCount > judgeCount {
					return false
				}
				if entry.AverageRank < 1 || entry.AverageRank > float64(len(propertyLabels)) {
					return false
				}
			}

			for _, label := range unrankedLabels(propertyReveal, agg) {
				if ranked[label] {
					return false
				}
			}
			return true
		},
		gen.UInt64(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestParseRankingRoundTrip_PropertyBased verifies that any well-formed
// ranking section parses back to exactly the order it lists
func TestParseRankingRoundTrip_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("well-formed rankings round-trip through the parser", prop.ForAll(
		func(seed uint64) bool {
			rng := rand.New(rand.NewPCG(seed, 0xf00d))
			order := append([]string(nil), propertyLabels...)
			rng.Shuffle(len(order), func(a, b int) {
				order[a], order[b] = order[b], order[a]
			})

			var b strings.Builder
			b.WriteString("The responses vary in quality and depth.\n\n")
			b.WriteString(rankingMarker + "\n")
			for i, label := range order {
				fmt.Fprintf(&b, "%d. Response %s\n", i+1, label)
			}

			parsed, err := parseRanking(b.String(), propertyLabels)
			if err != nil {
				return false
			}
			return reflect.DeepEqual(parsed, order)
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
