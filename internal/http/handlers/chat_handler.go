// Chat HTTP handler.
//
// This file exposes the conversational intake endpoint:
//   - POST /chat  (one conversation turn)
//
// The handler is transport-thin: it validates input, calls the conversation
// service, and translates the result into an HTTP response. Conversation
// outcomes (including internal failures surfaced as an ERROR status) are all
// HTTP 200; transport-level problems (bad JSON, oversized message) are 4xx.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-insurance-intake/internal/domain"
	"github.com/tbourn/go-insurance-intake/internal/services"
)

// ConversationService defines the conversation operation consumed by the
// chat handler.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// HandleTurn processes one user message against the supplied history.
	HandleTurn(ctx context.Context, history []domain.Turn, message string) (*services.Result, error)
}

// ChatRequest is the JSON payload for one conversation turn. The caller owns
// the history; the server keeps no session state.
type ChatRequest struct {
	// Message is the newest user utterance.
	Message string `json:"message" binding:"required" example:"Hi, I want to register my car"`
	// ConversationHistory is the ordered prior exchange, oldest first.
	ConversationHistory []domain.Turn `json:"conversation_history"`
}

// Chat godoc
// @ID          chat
// @Summary     Process one conversation turn
// @Description Runs extraction, validation, and duplicate resolution over the supplied history plus message, and returns the next assistant response with the conversation status.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ChatRequest  true  "Conversation turn payload"
//
// @Success     200  {object}  services.Result
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat [post]
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.convSvc.HandleTurn(c.Request.Context(), req.ConversationHistory, req.Message)
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message must not be empty")
		return
	case errors.Is(err, services.ErrTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message too long")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeChatFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, res)
}
