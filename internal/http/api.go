package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"usdqs-ledger/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users            service.UserService
	ledger           service.LedgerService
	sessions         *service.SessionManager
	logger           *logrus.Logger
	authLimiter      *limiter.Limiter
	idempotencyCache IdempotencyCache
}

// Options carries the optional collaborators of a Handler.
type Options struct {
	// AuthLimiter throttles registration and login per client IP.
	AuthLimiter *limiter.Limiter
	// Idempotency enables Idempotency-Key handling on money-moving commands.
	Idempotency IdempotencyCache
}

func NewHandler(users service.UserService, ledger service.LedgerService, sessions *service.SessionManager, logger *logrus.Logger, opts Options) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		users:            users,
		ledger:           ledger,
		sessions:         sessions,
		logger:           logger,
		authLimiter:      opts.AuthLimiter,
		idempotencyCache: opts.Idempotency,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(), requestLogger(h.logger))

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		throttled := api.Group("", h.rateLimit(h.authLimiter))
		throttled.POST("/users", h.register)
		throttled.POST("/sessions", h.login)

		authed := api.Group("", h.authMiddleware())
		authed.DELETE("/sessions", h.logout)
		authed.GET("/session", h.currentSession)
		authed.GET("/account", h.getAccount)

		commands := authed.Group("/account", h.idempotency())
		commands.POST("/buy", h.buy)
		commands.POST("/sell", h.sell)
		commands.POST("/transfers", h.transfer)
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type amountRequest struct {
	Amount json.RawMessage `json:"amount"`
}

type transferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    json.RawMessage `json:"amount"`
}

// parseAmountField accepts an amount written either as a JSON string or as a
// bare JSON number, keeping every digit of the latter.
func parseAmountField(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("%w: amount is required", service.ErrInvalidAmount)
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", service.ErrInvalidAmount, err)
		}
		return service.ParseAmount(text)
	}
	return service.ParseAmount(string(raw))
}

func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, http.StatusBadRequest, kindBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, userToResponse(*user))
}

// login authenticates, opens a session and makes sure the account exists.
func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	acct, err := h.ledger.GetAccount(ctx, user.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, sess, err := h.sessions.Begin(user)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": SessionResponse{
			Token:     token,
			Username:  sess.Username,
			ExpiresAt: sess.ExpiresAt.Format(time.RFC3339),
		},
		"account": accountToResponse(acct),
	})
}

func (h *Handler) logout(c *gin.Context) {
	h.sessions.End(c.GetString(ctxToken))
	c.Status(http.StatusNoContent)
}

func (h *Handler) currentSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": currentUsername(c)})
}

func (h *Handler) getAccount(c *gin.Context) {
	acct, err := h.ledger.GetAccount(c.Request.Context(), currentUsername(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, accountToResponse(acct))
}

func (h *Handler) buy(c *gin.Context) {
	var req amountRequest
	if !h.bindJSON(c, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	username := currentUsername(c)
	tx, err := h.ledger.Buy(c.Request.Context(), username, amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOperation(c, username, transactionToResponse(tx))
}

func (h *Handler) sell(c *gin.Context) {
	var req amountRequest
	if !h.bindJSON(c, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	username := currentUsername(c)
	tx, err := h.ledger.Sell(c.Request.Context(), username, amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOperation(c, username, transactionToResponse(tx))
}

func (h *Handler) transfer(c *gin.Context) {
	var req transferRequest
	if !h.bindJSON(c, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	username := currentUsername(c)
	// trimmed like usernames at registration
	recipient := strings.TrimSpace(req.Recipient)
	sent, _, err := h.ledger.Transfer(c.Request.Context(), username, recipient, amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondOperation(c, username, transactionToResponse(sent))
}

// respondOperation answers a command with its record and the caller's
// account as it stands afterwards.
func (h *Handler) respondOperation(c *gin.Context, username string, tx TransactionResponse) {
	acct, err := h.ledger.GetAccount(c.Request.Context(), username)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, OperationResponse{
		Transaction: tx,
		Account:     accountToResponse(acct),
	})
}
