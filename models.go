package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Mode selects how many stages a deliberation runs
type Mode string

const (
	// ModeFull runs all three stages including anonymous peer ranking
	ModeFull Mode = "full"
	// ModeQuick skips peer ranking and synthesizes directly from Stage 1
	ModeQuick Mode = "quick"
)

// Request validation bounds
const (
	MinQuestionLen  = 10
	MaxQuestionLen  = 5000
	MinParticipants = 2
	MaxParticipants = 10
)

// DefaultPerCallTimeout bounds a single model call when the request leaves
// PerCallTimeout zero
const DefaultPerCallTimeout = 120 * time.Second

// DeliberationRequest describes one deliberation run: the question, the
// council answering it, the chairman synthesizing, and the per-call limit.
// Build it with NewDeliberationRequest; the orchestrator never mutates it.
type DeliberationRequest struct {
	Question       string        `json:"question"`
	ParticipantIDs []string      `json:"participant_ids"`
	ChairmanID     string        `json:"chairman_id"`
	Mode           Mode          `json:"mode"`
	PerCallTimeout time.Duration `json:"per_call_timeout_ns"`
}

// NewDeliberationRequest validates and assembles an immutable request.
// A zero perCallTimeout selects DefaultPerCallTimeout.
func NewDeliberationRequest(question string, participantIDs []string, chairmanID string, mode Mode, perCallTimeout time.Duration) (DeliberationRequest, error) {
	question = strings.TrimSpace(question)
	if n := utf8.RuneCountInString(question); n < MinQuestionLen || n > MaxQuestionLen {
		return DeliberationRequest{}, &RequestValidationError{
			Field:  "question",
			Reason: fmt.Sprintf("length %d outside %d-%d characters", n, MinQuestionLen, MaxQuestionLen),
		}
	}

	if len(participantIDs) < MinParticipants || len(participantIDs) > MaxParticipants {
		return DeliberationRequest{}, &RequestValidationError{
			Field:  "participant_ids",
			Reason: fmt.Sprintf("%d participants outside %d-%d", len(participantIDs), MinParticipants, MaxParticipants),
		}
	}
	participants := make([]string, 0, len(participantIDs))
	seen := make(map[string]bool, len(participantIDs))
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return DeliberationRequest{}, &RequestValidationError{Field: "participant_ids", Reason: "empty participant id"}
		}
		if seen[id] {
			return DeliberationRequest{}, &RequestValidationError{Field: "participant_ids", Reason: fmt.Sprintf("duplicate participant id %q", id)}
		}
		seen[id] = true
		participants = append(participants, id)
	}

	chairmanID = strings.TrimSpace(chairmanID)
	if chairmanID == "" {
		return DeliberationRequest{}, &RequestValidationError{Field: "chairman_id", Reason: "chairman id is required"}
	}

	if mode != ModeFull && mode != ModeQuick {
		return DeliberationRequest{}, &RequestValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}

	if perCallTimeout < 0 {
		return DeliberationRequest{}, &RequestValidationError{Field: "per_call_timeout", Reason: "timeout must not be negative"}
	}
	if perCallTimeout == 0 {
		perCallTimeout = DefaultPerCallTimeout
	}

	return DeliberationRequest{
		Question:       question,
		ParticipantIDs: participants,
		ChairmanID:     chairmanID,
		Mode:           mode,
		PerCallTimeout: perCallTimeout,
	}, nil
}

// ParticipantResponse is the settled outcome of one model call. Failures
// travel as data: Succeeded false plus an ErrorKind, never a Go error.
type ParticipantResponse struct {
	ParticipantID string        `json:"participant_id"`
	Text          string        `json:"text,omitempty"`
	Succeeded     bool          `json:"succeeded"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns"`
}

// AnonymizedTranscript is a Stage 1 response stripped of its author for
// peer ranking. ParticipantID stays inside the orchestrator; it is never
// marshaled and never placed in a ranking prompt.
type AnonymizedTranscript struct {
	Label         string `json:"label"`
	ParticipantID string `json:"-"`
	Text          string `json:"text"`
}

// RankingSubmission is one judge's parsed ranking of the anonymized
// responses, kept with the raw text it was parsed from
type RankingSubmission struct {
	JudgeID      string   `json:"judge_id"`
	RankedLabels []string `json:"ranked_labels"`
	Raw          string   `json:"raw"`
}

// AggregateRanking is one label's combined standing across all judges
type AggregateRanking struct {
	Label         string  `json:"label"`
	ParticipantID string  `json:"participant_id"`
	AverageRank   float64 `json:"average_rank"`
	VoteCount     int     `json:"vote_count"`
}

// SynthesisResult is the chairman's final answer with a confidence in [0,1]
type SynthesisResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DeliberationStatus is the terminal state of a run
type DeliberationStatus string

const (
	StatusComplete DeliberationStatus = "complete"
	StatusFailed   DeliberationStatus = "failed"
)

// DeliberationResult is the terminal artifact of a run. Both outcomes use
// it: a failed run carries FailureKind and FailedStage instead of a
// synthesis. Callers always get a result, never a raised failure.
type DeliberationResult struct {
	ID          string                `json:"id"`
	Request     DeliberationRequest   `json:"request"`
	Status      DeliberationStatus    `json:"status"`
	Responses   []ParticipantResponse `json:"responses"`
	Rankings    []RankingSubmission   `json:"rankings,omitempty"`
	Aggregate   []AggregateRanking    `json:"aggregate,omitempty"`
	Synthesis   *SynthesisResult      `json:"synthesis,omitempty"`
	FailureKind ErrorKind             `json:"failure_kind,omitempty"`
	FailedStage string                `json:"failed_stage,omitempty"`
	Metadata    RunMetadata           `json:"metadata"`
}

// RunMetadata records per-run observability counters
type RunMetadata struct {
	StartedAt          time.Time         `json:"started_at"`
	Elapsed            time.Duration     `json:"elapsed_ns"`
	Stage1Succeeded    int               `json:"stage1_succeeded"`
	Stage1Total        int               `json:"stage1_total"`
	Stage2Succeeded    int               `json:"stage2_succeeded,omitempty"`
	Stage2Total        int               `json:"stage2_total,omitempty"`
	ParseFailures      int               `json:"parse_failures,omitempty"`
	LabelToParticipant map[string]string `json:"label_to_participant,omitempty"`
	UnrankedLabels     []string          `json:"unranked_labels,omitempty"`
}

// Message is a single turn in a conversation
type Message struct {
	Role    string              `json:"role"`
	Content string              `json:"content,omitempty"`
	Result  *DeliberationResult `json:"result,omitempty"`
}

// Conversation is a stored thread of questions and deliberation results
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata is the list-view projection of a conversation
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// OpenRouterMessage is a chat message for the OpenRouter API
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenRouterRequest is the body of an OpenRouter chat completion call
type OpenRouterRequest struct {
	Model    string              `json:"model"`
	Messages []OpenRouterMessage `json:"messages"`
}

// OpenRouterAPIResponse is the subset of the OpenRouter reply we read
type OpenRouterAPIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DeliberateRequest is the body of POST /api/deliberate
type DeliberateRequest struct {
	Question     string   `json:"question"`
	Mode         string   `json:"mode,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Chairman     string   `json:"chairman,omitempty"`
	ContextURL   string   `json:"context_url,omitempty"`
}

// SendMessageRequest is the body of POST /api/conversations/:id/message
type SendMessageRequest struct {
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

// FetchURLRequest is the body of POST /api/fetch-url
type FetchURLRequest struct {
	URL string `json:"url"`
}
