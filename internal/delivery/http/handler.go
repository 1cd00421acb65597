package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

// eventTimeout bounds a single background conversation turn, including the
// model round trips and any page scraping the tools perform.
const eventTimeout = 90 * time.Second

// EventBot is the part of the Slack bot the HTTP layer drives.
type EventBot interface {
	ParseEvent(body []byte) (slackevents.EventsAPIEvent, error)
	ProcessEvent(ctx context.Context, event slackevents.EventsAPIEvent)
	HandleOrderPlaced(ctx context.Context, commandChannelID string) string
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	bot           EventBot
	signingSecret string
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(bot EventBot, signingSecret string, logger *zap.Logger) *Handler {
	return &Handler{bot: bot, signingSecret: signingSecret, logger: logger}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "slack-shopping-agent",
		"version": "1.0.0",
	})
}

// SlackEvents receives Events API callbacks. Slack retries any event that is
// not acknowledged within 3 seconds, so conversations run in the background
// and the request is acked immediately.
func (h *Handler) SlackEvents(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}

	event, err := h.bot.ParseEvent(body)
	if err != nil {
		h.logger.Warn("could not parse event payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	if event.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge payload"})
			return
		}
		c.String(http.StatusOK, challenge.Challenge)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		h.bot.ProcessEvent(ctx, event)
	}()

	c.Status(http.StatusOK)
}

// SlackCommands receives slash command submissions.
func (h *Handler) SlackCommands(c *gin.Context) {
	body, ok := h.verifiedBody(c)
	if !ok {
		return
	}

	// SlashCommandParse consumes the request body, which the signature
	// check already read.
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		h.logger.Warn("could not parse slash command", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command payload"})
		return
	}

	switch cmd.Command {
	case "/order-placed":
		c.String(http.StatusOK, h.bot.HandleOrderPlaced(c.Request.Context(), cmd.ChannelID))
	default:
		h.logger.Warn("unknown slash command", zap.String("command", cmd.Command))
		c.String(http.StatusOK, fmt.Sprintf("Unknown command: %s", cmd.Command))
	}
}

// verifiedBody reads the request body and checks the Slack request signature.
// On failure it writes the error response and returns ok=false.
func (h *Handler) verifiedBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return nil, false
	}

	verifier, err := slack.NewSecretsVerifier(c.Request.Header, h.signingSecret)
	if err != nil {
		h.logger.Warn("rejected request with bad signature headers", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid request signature"})
		return nil, false
	}
	if _, err := verifier.Write(body); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signature verification failed"})
		return nil, false
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Warn("rejected request with invalid signature")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid request signature"})
		return nil, false
	}
	return body, true
}
