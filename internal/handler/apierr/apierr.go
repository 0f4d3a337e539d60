// Package apierr maps service errors onto HTTP status codes.
package apierr

import (
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/pac-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
	"github.com/zhouzirui/pac-chat/backend/internal/service/identity"
	"github.com/zhouzirui/pac-chat/backend/internal/store"
	"github.com/zhouzirui/pac-chat/backend/pkg/utils"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	var validation *chatService.ValidationError
	var completion *ai.CompletionError
	switch {
	case errors.As(err, &validation), errors.Is(err, identity.ErrEmailRequired):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrCompletionPending), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, store.ErrRemoteUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &completion):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body.
func Respond(w http.ResponseWriter, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[api] request failed status=%d: %v", status, err)
	}
	utils.RespondError(w, status, err.Error())
}
