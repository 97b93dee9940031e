package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"wealthledger/internal/identity"
	"wealthledger/internal/model"
	"wealthledger/internal/session"
)

type Handler struct {
	svc session.Service
	ids *identity.Verifier
}

func NewHandler(svc session.Service, ids *identity.Verifier) *Handler {
	return &Handler{svc: svc, ids: ids}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /funds", h.GetFunds)
	mux.HandleFunc("POST /funds/refresh", h.RefreshFunds)
	mux.HandleFunc("POST /funds/add", h.AddFunds)
	mux.HandleFunc("POST /funds/withdraw", h.WithdrawFunds)
	mux.HandleFunc("POST /credential", h.ChangeCredential)
	mux.HandleFunc("POST /loans", h.RequestLoan)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// owner resolves the caller identity or writes a 401 and returns false.
func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := h.ids.FromRequest(r)
	if err != nil {
		h.respondError(w, http.StatusUnauthorized, "no_identity")
		return "", false
	}
	return owner, true
}

func (h *Handler) GetFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	bal, err := h.svc.Balance(r.Context(), owner)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"balance": bal})
}

func (h *Handler) RefreshFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	bal, err := h.svc.RefreshBalance(r.Context(), owner)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"balance": bal})
}

func (h *Handler) AddFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	bal, err := h.svc.Deposit(r.Context(), owner, req.Amount)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"balance": bal})
}

func (h *Handler) WithdrawFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	bal, err := h.svc.Withdraw(r.Context(), owner, req.Amount)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"balance": bal})
}

func (h *Handler) ChangeCredential(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentSecret string `json:"current_secret"`
		NewSecret     string `json:"new_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.ChangeCredential(r.Context(), owner, req.CurrentSecret, req.NewSecret); err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount         int64 `json:"amount"`
		DurationMonths int   `json:"duration_months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	status, err := h.svc.RequestLoan(r.Context(), owner, req.Amount, req.DurationMonths)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// respondDomainError maps the error taxonomy onto HTTP statuses. The
// taxonomy code travels verbatim in the payload so the presentation
// layer can act on it.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	code := model.CodeOf(err)
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, model.ErrOperationInProgress):
		status = http.StatusConflict
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, model.ErrInsufficientFunds),
		errors.Is(err, model.ErrArithmeticOverflow),
		errors.Is(err, model.ErrInvalidCredential),
		errors.Is(err, model.ErrAlreadyProcessed),
		code == model.CodeValidation:
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, map[string]string{"error": code, "detail": err.Error()})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
