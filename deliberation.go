package main

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Deliberation states. The machine is strictly forward: stage joins are
// barriers, and the two terminal states permit no further transitions.
const (
	stateInit           = "init"
	stateStage1Running  = "stage1_running"
	stateStage2Running  = "stage2_running"
	stateSkippingStage2 = "skipping_stage2"
	stateStage3Running  = "stage3_running"
	stateComplete       = "complete"
	stateFailed         = "failed"
)

// Stage names used in results, events, logs and metrics
const (
	StageResponses = "stage1"
	StageRanking   = "stage2"
	StageSynthesis = "stage3"
)

// StageEvent phases
const (
	PhaseStart    = "start"
	PhaseComplete = "complete"
	PhaseSkipped  = "skipped"
)

// Default confidence when the chairman reports none
const (
	defaultConfidenceFull  = 0.85
	defaultConfidenceQuick = 0.80
)

// StageEvent notifies an observer of stage progress
type StageEvent struct {
	Stage     string
	Phase     string
	Succeeded int
	Total     int
	Elapsed   time.Duration
}

// StageObserver receives StageEvents as a deliberation advances
type StageObserver func(StageEvent)

// Deliberation drives one DeliberationRequest through the three-stage
// protocol. It is single-use: construct with NewDeliberation, call Run
// exactly once.
type Deliberation struct {
	req      DeliberationRequest
	gateway  *Gateway
	observer StageObserver

	mu    sync.Mutex
	state string
}

// Option configures a Deliberation
type Option func(*Deliberation)

// WithObserver registers a hook receiving stage progress events
func WithObserver(fn StageObserver) Option {
	return func(d *Deliberation) {
		d.observer = fn
	}
}

// NewDeliberation builds the state machine for one validated request
func NewDeliberation(req DeliberationRequest, gateway *Gateway, opts ...Option) *Deliberation {
	d := &Deliberation{
		req:     req,
		gateway: gateway,
		state:   stateInit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State reports the machine's current state
func (d *Deliberation) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Deliberation) setState(state string) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

// consume moves init to stage1_running; it fails once the machine has left
// init, which makes Run single-use even under concurrent callers
func (d *Deliberation) consume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateInit {
		return false
	}
	d.state = stateStage1Running
	return true
}

func (d *Deliberation) emit(ev StageEvent) {
	if d.observer != nil {
		d.observer(ev)
	}
}

// Run executes the deliberation under ctx, which bounds the whole run on
// top of the request's per-call timeout. The returned error is non-nil
// only for misuse (a consumed Deliberation); every deliberation outcome,
// including failure, arrives as a DeliberationResult.
func (d *Deliberation) Run(ctx context.Context) (*DeliberationResult, error) {
	if !d.consume() {
		return nil, ErrDeliberationConsumed
	}

	start := time.Now()
	result := &DeliberationResult{
		ID:      uuid.New().String(),
		Request: d.req,
		Metadata: RunMetadata{
			StartedAt:   start,
			Stage1Total: len(d.req.ParticipantIDs),
		},
	}

	log.Info().
		Str("deliberation", result.ID).
		Int("participants", len(d.req.ParticipantIDs)).
		Str("chairman", d.req.ChairmanID).
		Str("mode", string(d.req.Mode)).
		Msg("deliberation started")

	// Stage 1: every participant answers the question independently.
	d.emit(StageEvent{Stage: StageResponses, Phase: PhaseStart, Total: len(d.req.ParticipantIDs)})
	stageStart := time.Now()

	result.Responses = d.gateway.QueryAll(ctx, d.req.ParticipantIDs, d.req.Question, d.req.PerCallTimeout)
	succeeded := successfulResponses(result.Responses)
	result.Metadata.Stage1Succeeded = len(succeeded)

	d.emit(StageEvent{
		Stage:     StageResponses,
		Phase:     PhaseComplete,
		Succeeded: len(succeeded),
		Total:     len(d.req.ParticipantIDs),
		Elapsed:   time.Since(stageStart),
	})

	if len(succeeded) < MinParticipants {
		return d.fail(result, StageResponses, ErrKindInsufficientResponses, start), nil
	}

	// Stage 2: anonymous peer ranking, full mode only.
	if d.req.Mode == ModeFull {
		d.setState(stateStage2Running)

		transcripts, reveal := anonymizeResponses(succeeded)
		result.Metadata.LabelToParticipant = reveal

		judges := participantIDsOf(succeeded)
		result.Metadata.Stage2Total = len(judges)
		d.emit(StageEvent{Stage: StageRanking, Phase: PhaseStart, Total: len(judges)})
		stageStart = time.Now()

		if ctx.Err() == nil {
			rankingPrompt := buildRankingPrompt(d.req.Question, transcripts)
			replies := d.gateway.QueryAll(ctx, judges, rankingPrompt, d.req.PerCallTimeout)
			valid := transcriptLabels(transcripts)
			for _, reply := range replies {
				if !reply.Succeeded {
					continue
				}
				labels, err := parseRanking(reply.Text, valid)
				if err != nil {
					result.Metadata.ParseFailures++
					log.Warn().
						Str("deliberation", result.ID).
						Str("judge", reply.ParticipantID).
						Err(err).
						Msg("dropping unparseable ranking")
					continue
				}
				result.Rankings = append(result.Rankings, RankingSubmission{
					JudgeID:      reply.ParticipantID,
					RankedLabels: labels,
					Raw:          reply.Text,
				})
			}
		} else {
			// Overall deadline spent at the stage boundary: every judge is
			// treated as timed out and no ranking calls are issued.
			log.Warn().
				Str("deliberation", result.ID).
				Msg("deadline reached before ranking stage")
		}

		result.Metadata.Stage2Succeeded = len(result.Rankings)
		result.Aggregate = aggregateRankings(result.Rankings, reveal)
		result.Metadata.UnrankedLabels = unrankedLabels(reveal, result.Aggregate)

		d.emit(StageEvent{
			Stage:     StageRanking,
			Phase:     PhaseComplete,
			Succeeded: len(result.Rankings),
			Total:     len(judges),
			Elapsed:   time.Since(stageStart),
		})
	} else {
		d.setState(stateSkippingStage2)
		d.emit(StageEvent{Stage: StageRanking, Phase: PhaseSkipped})
	}

	// Stage 3: a single chairman call, with no degradation path. A
	// deliberation without a synthesized answer has no useful output.
	d.setState(stateStage3Running)
	d.emit(StageEvent{Stage: StageSynthesis, Phase: PhaseStart, Total: 1})
	stageStart = time.Now()

	if ctx.Err() != nil {
		return d.fail(result, StageSynthesis, ErrKindSynthesisFailed, start), nil
	}

	var prompt string
	if d.req.Mode == ModeFull {
		prompt = buildSynthesisPrompt(d.req.Question, succeeded, result.Aggregate)
	} else {
		prompt = buildQuickSynthesisPrompt(d.req.Question, succeeded)
	}

	chairman := d.gateway.Query(ctx, d.req.ChairmanID, prompt, d.req.PerCallTimeout)
	if !chairman.Succeeded {
		return d.fail(result, StageSynthesis, ErrKindSynthesisFailed, start), nil
	}

	text, confidence := extractConfidence(chairman.Text, d.req.Mode)
	result.Synthesis = &SynthesisResult{Text: text, Confidence: confidence}
	result.Status = StatusComplete
	result.Metadata.Elapsed = time.Since(start)
	d.setState(stateComplete)

	d.emit(StageEvent{
		Stage:     StageSynthesis,
		Phase:     PhaseComplete,
		Succeeded: 1,
		Total:     1,
		Elapsed:   time.Since(stageStart),
	})

	log.Info().
		Str("deliberation", result.ID).
		Dur("elapsed", result.Metadata.Elapsed).
		Float64("confidence", confidence).
		Msg("deliberation complete")

	return result, nil
}

// fail finalizes the result in the failed state, recording the reached
// stage and the error kind
func (d *Deliberation) fail(result *DeliberationResult, stage string, kind ErrorKind, start time.Time) *DeliberationResult {
	d.setState(stateFailed)
	result.Status = StatusFailed
	result.FailureKind = kind
	result.FailedStage = stage
	result.Metadata.Elapsed = time.Since(start)

	log.Error().
		Str("deliberation", result.ID).
		Str("stage", stage).
		Str("failure_kind", string(kind)).
		Dur("elapsed", result.Metadata.Elapsed).
		Msg("deliberation failed")

	return result
}

// successfulResponses filters a stage's settled responses down to successes
func successfulResponses(responses []ParticipantResponse) []ParticipantResponse {
	var successes []ParticipantResponse
	for _, r := range responses {
		if r.Succeeded {
			successes = append(successes, r)
		}
	}
	return successes
}

// participantIDsOf lists the participant ids of the given responses in order
func participantIDsOf(responses []ParticipantResponse) []string {
	ids := make([]string, len(responses))
	for i, r := range responses {
		ids[i] = r.ParticipantID
	}
	return ids
}

// buildRankingPrompt asks a judge to evaluate the anonymized transcripts
// and finish with a structured ranking section
func buildRankingPrompt(question string, transcripts []AnonymizedTranscript) string {
	var responsesText strings.Builder
	for _, t := range transcripts {
		responsesText.WriteString(fmt.Sprintf("Response %s:\n%s\n\n", t.Label, t.Text))
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, question, responsesText.String())
}

// buildSynthesisPrompt asks the chairman to combine the council's responses
// and their aggregate ranking into one final answer
func buildSynthesisPrompt(question string, responses []ParticipantResponse, aggregate []AggregateRanking) string {
	var responsesText strings.Builder
	for _, r := range responses {
		responsesText.WriteString(fmt.Sprintf("Participant: %s\nResponse: %s\n\n", r.ParticipantID, r.Text))
	}

	var rankingText strings.Builder
	if len(aggregate) == 0 {
		rankingText.WriteString("No usable peer rankings were collected.\n")
	}
	for i, entry := range aggregate {
		rankingText.WriteString(fmt.Sprintf("%d. %s (average rank %.2f across %d votes)\n",
			i+1, entry.ParticipantID, entry.AverageRank, entry.VoteCount))
	}

	return fmt.Sprintf(`You are the Chairman of a deliberation council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses anonymously.

Original Question: %s

STAGE 1 - Individual Responses:
%s

STAGE 2 - Aggregate Peer Ranking (best first):
%s

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer ranking and what it reveals about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom.
End your response with a line of the form "CONFIDENCE: NN%%" estimating your confidence in the answer:`, question, responsesText.String(), rankingText.String())
}

// buildQuickSynthesisPrompt is the quick-mode variant: no peer ranking, the
// chairman synthesizes directly from the raw responses
func buildQuickSynthesisPrompt(question string, responses []ParticipantResponse) string {
	var responsesText strings.Builder
	for _, r := range responses {
		responsesText.WriteString(fmt.Sprintf("Participant: %s\nResponse: %s\n\n", r.ParticipantID, r.Text))
	}

	return fmt.Sprintf(`You are the Chairman of a deliberation council. Multiple AI models have provided independent responses to a user's question.

Original Question: %s

Individual Responses:
%s

Synthesize these responses into a single, comprehensive, accurate answer to the user's original question.
End your response with a line of the form "CONFIDENCE: NN%%" estimating your confidence in the answer:`, question, responsesText.String())
}

// confidencePattern matches the chairman's self-reported confidence line
var confidencePattern = regexp.MustCompile(`CONFIDENCE:\s*(\d+)\s*%?`)

// extractConfidence pulls the chairman's confidence out of the synthesis
// text, clamped to [0,1]. Absent or unreadable values fall back to the mode
// default. A confidence line closing the reply is trimmed from the text.
func extractConfidence(text string, mode Mode) (string, float64) {
	confidence := defaultConfidenceFull
	if mode == ModeQuick {
		confidence = defaultConfidenceQuick
	}

	matches := confidencePattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(text), confidence
	}

	last := matches[len(matches)-1]
	if value, err := strconv.Atoi(text[last[2]:last[3]]); err == nil {
		confidence = float64(value) / 100
		if confidence > 1 {
			confidence = 1
		}
	}

	if strings.TrimSpace(text[last[1]:]) == "" {
		text = text[:last[0]]
	}
	return strings.TrimSpace(text), confidence
}

// GenerateConversationTitle produces a 3-5 word conversation title with a
// fast model. Failures are the caller's to ignore; titles are cosmetic.
func GenerateConversationTitle(ctx context.Context, gateway *Gateway, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	reply := gateway.Query(ctx, TitleModel, titlePrompt, TitleGenTimeout)
	if !reply.Succeeded {
		return "", fmt.Errorf("title generation failed: %s", reply.ErrorDetail)
	}

	title := strings.TrimSpace(reply.Text)
	title = strings.Trim(title, "\"'")
	if len(title) > 50 {
		title = title[:47] + "..."
	}

	return title, nil
}
