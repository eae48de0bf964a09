package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"usdqs-ledger/internal/service"
)

// Error kinds double as message catalog keys for the presentation layer.
const (
	kindUsernameTaken       = "username_taken"
	kindInvalidUsername     = "invalid_username"
	kindInvalidPassword     = "invalid_password"
	kindUserNotFound        = "user_not_found"
	kindInvalidCredentials  = "invalid_credentials"
	kindInvalidAmount       = "invalid_amount"
	kindInsufficientBalance = "insufficient_balance"
	kindSelfTransfer        = "self_transfer"
	kindRecipientNotFound   = "recipient_not_found"
	kindPersistence         = "persistence_error"
	kindUnauthorized        = "unauthorized"
	kindBadRequest          = "bad_request"
	kindRateLimited         = "rate_limited"
	kindConflict            = "conflict"
	kindInternal            = "internal_error"
)

var errorKinds = []struct {
	err    error
	kind   string
	status int
}{
	{service.ErrUsernameTaken, kindUsernameTaken, http.StatusConflict},
	{service.ErrInvalidUsername, kindInvalidUsername, http.StatusBadRequest},
	{service.ErrInvalidPassword, kindInvalidPassword, http.StatusBadRequest},
	{service.ErrUserNotFound, kindUserNotFound, http.StatusNotFound},
	{service.ErrInvalidCredentials, kindInvalidCredentials, http.StatusUnauthorized},
	{service.ErrSessionNotFound, kindUnauthorized, http.StatusUnauthorized},
	{service.ErrInvalidAmount, kindInvalidAmount, http.StatusBadRequest},
	{service.ErrInsufficientBalance, kindInsufficientBalance, http.StatusUnprocessableEntity},
	{service.ErrSelfTransfer, kindSelfTransfer, http.StatusUnprocessableEntity},
	{service.ErrRecipientNotFound, kindRecipientNotFound, http.StatusNotFound},
	{service.ErrPersistence, kindPersistence, http.StatusServiceUnavailable},
}

// classify maps a service error onto its kind and HTTP status.
func classify(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind, k.status
		}
	}
	return kindInternal, http.StatusInternalServerError
}

func abortWithError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": kind, "message": message})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	kind, status := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("unhandled error")
		message = "internal server error"
	}
	abortWithError(c, status, kind, message)
}
