package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/webhook"
)

func (r *Router) handleClerkWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	if err := r.webhooks.HandleClerk(req.Context(), body, req.Header); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "invalid webhook signature")
			return
		}
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleGitHubWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	delivery := webhook.GitHubDelivery{
		Event:     req.Header.Get("X-GitHub-Event"),
		ID:        req.Header.Get("X-GitHub-Delivery"),
		Signature: req.Header.Get("X-Hub-Signature-256"),
	}
	if err := r.webhooks.HandleGitHub(req.Context(), delivery, body); err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
