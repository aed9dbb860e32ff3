package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Shared server state
var (
	gateway     *Gateway
	resultCache *ResultCache
	metrics     *Metrics
)

func main() {
	setupLogging()
	LoadConfig()

	gateway = NewGateway(NewOpenRouterClient(OpenRouterAPIURL, OpenRouterAPIKey))
	resultCache = NewResultCache(ResultCacheTTL)
	metrics = NewMetrics()

	router := setupRouter()

	log.Info().Msg("starting deliberation backend on port 8001")
	if err := router.Run(":8001"); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// setupLogging configures the global zerolog logger
func setupLogging() {
	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// setupRouter builds the Gin router with all middleware and routes
func setupRouter() *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	router.Use(metrics.Middleware())

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(CORSAllowedOrigins) > 0 {
				for _, allowedOrigin := range CORSAllowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1")
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/metrics", gin.WrapF(metrics.WritePrometheus))
	router.POST("/api/deliberate", deliberateHandler)
	router.GET("/api/conversations", listConversationsHandler)
	router.POST("/api/conversations", createConversationHandler)
	router.GET("/api/conversations/:id", getConversationHandler)
	router.POST("/api/conversations/:id/message", sendMessageHandler)
	router.POST("/api/conversations/:id/message/stream", sendMessageStreamHandler)
	router.POST("/api/fetch-url", fetchURLHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Deliberation API",
	})
}

// buildDeliberationRequest merges an API request with configured defaults
func buildDeliberationRequest(question, mode string, participants []string, chairman string) (DeliberationRequest, error) {
	if len(participants) == 0 {
		participants = CouncilParticipants
	}
	if chairman == "" {
		chairman = ChairmanModel
	}
	requestMode := DefaultMode
	if mode != "" {
		requestMode = Mode(mode)
	}
	return NewDeliberationRequest(question, participants, chairman, requestMode, ModelQueryTimeout)
}

// runDeliberation executes one deliberation under the server's overall
// deadline, recording run metrics
func runDeliberation(ctx context.Context, req DeliberationRequest, observer StageObserver) (*DeliberationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DeliberationTimeout)
	defer cancel()

	stageObserver := metrics.StageObserver()
	if observer != nil {
		inner := stageObserver
		stageObserver = func(ev StageEvent) {
			inner(ev)
			observer(ev)
		}
	}

	deliberation := NewDeliberation(req, gateway, WithObserver(stageObserver))
	result, err := deliberation.Run(ctx)
	if err != nil {
		return nil, err
	}

	metrics.ObserveRun(req.Mode, result.Status)
	return result, nil
}

// deliberateHandler runs a one-shot deliberation.
// POST /api/deliberate - Body: {"question": "...", "mode": "full|quick",
// "participants": [...], "chairman": "...", "context_url": "https://..."}.
// Completed results are cached by question and mode; ?format=markdown
// returns the narrative rendering instead of JSON.
func deliberateHandler(c *gin.Context) {
	var request DeliberateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	question := request.Question
	if request.ContextURL != "" {
		content, err := FetchURLContent(c.Request.Context(), request.ContextURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to fetch context URL: %v", err),
			})
			return
		}
		question = questionWithContext(question, content)
	}

	req, err := buildDeliberationRequest(question, request.Mode, request.Participants, request.Chairman)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	result, ok := resultCache.Get(req.Question, req.Mode)
	if !ok {
		result, err = runDeliberation(c.Request.Context(), req, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Deliberation failed to run: %v", err),
			})
			return
		}
		if result.Status == StatusComplete {
			resultCache.Set(req.Question, req.Mode, result)
		}
	}

	if c.Query("format") == "markdown" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(FormatMarkdown(result)))
		return
	}

	data, err := FormatJSON(result)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to encode result: %v", err),
		})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func listConversationsHandler(c *gin.Context) {
	conversations, err := ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func createConversationHandler(c *gin.Context) {
	conversationID := uuid.New().String()

	conversation, err := CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// startTitleGeneration generates a conversation title in the background for
// the first message of a conversation. The returned channel yields the
// title once, then closes; it closes empty on failure.
func startTitleGeneration(conversationID, content string) chan string {
	titleChan := make(chan string, 1)
	go func() {
		defer close(titleChan)

		title, err := GenerateConversationTitle(context.Background(), gateway, content)
		if err != nil {
			log.Warn().Err(err).Str("conversation", conversationID).Msg("title generation failed")
			if err := UpdateConversationTitle(conversationID, "New Conversation"); err != nil {
				log.Warn().Err(err).Msg("failed to reset conversation title")
			}
			return
		}

		if err := UpdateConversationTitle(conversationID, title); err != nil {
			log.Warn().Err(err).Msg("failed to update conversation title")
			return
		}
		titleChan <- title
	}()
	return titleChan
}

// sendMessageHandler sends a message and runs the deliberation.
// POST /api/conversations/:id/message - Runs the council and returns the
// full result at once. Use sendMessageStreamHandler for the SSE version.
func sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	req, err := buildDeliberationRequest(request.Content, request.Mode, nil, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(conversationID, request.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add user message: %v", err),
		})
		return
	}

	// Generate title if first message (run in background)
	if isFirstMessage {
		startTitleGeneration(conversationID, request.Content)
	}

	result, err := runDeliberation(c.Request.Context(), req, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Deliberation failed to run: %v", err),
		})
		return
	}

	if err := AddAssistantMessage(conversationID, result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// sendMessageStreamHandler sends a message and streams deliberation
// progress via SSE.
// POST /api/conversations/:id/message/stream - Streams stage events as the
// run advances. Events: stage1_start, stage1_complete, stage2_start,
// stage2_complete, stage2_skipped, stage3_start, stage3_complete,
// title_complete, complete, error.
func sendMessageStreamHandler(c *gin.Context) {
	conversationID := c.Param("id")

	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	req, err := buildDeliberationRequest(request.Content, request.Mode, nil, "")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(conversationID, request.Content); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to add user message: %v", err))
		return
	}

	var titleChan chan string
	if isFirstMessage {
		titleChan = startTitleGeneration(conversationID, request.Content)
	}

	// Stage events fire synchronously inside Run, so writing to the
	// response from the observer stays on this handler's goroutine.
	observer := func(ev StageEvent) {
		switch ev.Phase {
		case PhaseStart:
			sendSSEEvent(c, gin.H{"type": ev.Stage + "_start"})
		case PhaseSkipped:
			sendSSEEvent(c, gin.H{"type": ev.Stage + "_skipped"})
		case PhaseComplete:
			sendSSEEvent(c, gin.H{
				"type":      ev.Stage + "_complete",
				"succeeded": ev.Succeeded,
				"total":     ev.Total,
			})
		}
	}

	result, err := runDeliberation(c.Request.Context(), req, observer)
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Deliberation failed to run: %v", err))
		return
	}

	// Wait for title if it was being generated
	if titleChan != nil {
		if title := <-titleChan; title != "" {
			sendSSEEvent(c, gin.H{"type": "title_complete", "data": gin.H{"title": title}})
		}
	}

	if err := AddAssistantMessage(conversationID, result); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to save message: %v", err))
		return
	}

	if result.Status == StatusFailed {
		sendSSEEvent(c, gin.H{
			"type":    "error",
			"message": fmt.Sprintf("deliberation failed at %s (%s)", result.FailedStage, result.FailureKind),
			"result":  result,
		})
		return
	}

	sendSSEEvent(c, gin.H{"type": "complete", "result": result})
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal SSE event")
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", jsonData)
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, gin.H{"type": "error", "message": message})
}

// fetchURLHandler fetches and extracts content from a given URL.
// POST /api/fetch-url - Body: {"url": "https://..."}
func fetchURLHandler(c *gin.Context) {
	var request FetchURLRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	content, err := FetchURLContent(c.Request.Context(), request.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}
