package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// APIHandler exposes the registry ledger over HTTP.
type APIHandler struct {
	svc    ports.RegistryService
	keys   ports.APIKeyRepository
	logger *slog.Logger
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(svc ports.RegistryService, keys ports.APIKeyRepository, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{svc: svc, keys: keys, logger: logger}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /names/{name}", h.GetRegistration)
	mux.HandleFunc("GET /names/{name}/owner", h.GetNameOwner)
	mux.HandleFunc("GET /names/{name}/availability", h.IsNameAvailable)
	mux.HandleFunc("GET /owners/{account}/names", h.GetOwnerNames)
	mux.HandleFunc("GET /events", h.ListEvents)
	mux.HandleFunc("GET /settings", h.GetSettings)

	// Middleware
	auth := AuthMiddleware(h.keys)
	admin := RequireRole(domain.RoleAdmin)

	// Protected Routes (caller is the account bound to the API key)
	mux.Handle("POST /names/{name}", auth(http.HandlerFunc(h.Register)))
	mux.Handle("POST /names/{name}/renew", auth(http.HandlerFunc(h.Renew)))
	mux.Handle("POST /names/{name}/transfer", auth(http.HandlerFunc(h.TransferName)))
	mux.Handle("DELETE /names/{name}", auth(http.HandlerFunc(h.ReleaseName)))
	mux.Handle("GET /accounts/{account}/balance", auth(http.HandlerFunc(h.GetBalance)))

	mux.Handle("PUT /admin/fee", auth(admin(http.HandlerFunc(h.SetFee))))
	mux.Handle("POST /admin/pause", auth(admin(http.HandlerFunc(h.Pause))))
	mux.Handle("POST /admin/unpause", auth(admin(http.HandlerFunc(h.Unpause))))
	mux.Handle("POST /admin/withdraw", auth(admin(http.HandlerFunc(h.Withdraw))))
}

type paymentRequest struct {
	Payment decimal.Decimal `json:"payment"`
}

type transferRequest struct {
	NewOwner domain.Account `json:"new_owner"`
}

type feeRequest struct {
	Fee decimal.Decimal `json:"fee"`
}

type renewResponse struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ownerResponse struct {
	Name  string         `json:"name"`
	Owner domain.Account `json:"owner"`
}

type availabilityResponse struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type ownerNamesResponse struct {
	Owner  domain.Account `json:"owner"`
	Active bool           `json:"active"`
	Names  []string       `json:"names"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
	Next   int64          `json:"next"`
}

type withdrawResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)

	for name, checkErr := range h.svc.HealthCheck(r.Context()) {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]any{"status": status, "details": details})
}

func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	payer, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	reg, err := h.svc.Register(r.Context(), r.PathValue("name"), payer, req.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	// a fresh registration is neither expired nor in grace
	h.writeJSON(w, http.StatusCreated, reg.View(reg.RegisteredAt, 0))
}

func (h *APIHandler) Renew(w http.ResponseWriter, r *http.Request) {
	payer, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := r.PathValue("name")
	expiresAt, err := h.svc.Renew(r.Context(), name, payer, req.Payment)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, renewResponse{Name: name, ExpiresAt: expiresAt})
}

func (h *APIHandler) TransferName(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.svc.TransferName(r.Context(), r.PathValue("name"), caller, req.NewOwner); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ReleaseName(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.ReleaseName(r.Context(), r.PathValue("name"), caller); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetRegistration(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) GetNameOwner(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	owner, err := h.svc.GetNameOwner(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ownerResponse{Name: name, Owner: owner})
}

func (h *APIHandler) IsNameAvailable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	available, err := h.svc.IsNameAvailable(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, availabilityResponse{Name: name, Available: available})
}

func (h *APIHandler) GetOwnerNames(w http.ResponseWriter, r *http.Request) {
	owner := domain.Account(r.PathValue("account"))
	active := r.URL.Query().Get("active") == "true"

	var (
		names []string
		err   error
	)
	if active {
		names, err = h.svc.GetActiveOwnerNames(r.Context(), owner)
	} else {
		names, err = h.svc.GetOwnerNames(r.Context(), owner)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ownerNamesResponse{Owner: owner, Active: active, Names: names})
}

// GetBalance returns settlement credits. Only the account itself or an admin may read them.
func (h *APIHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	account := domain.Account(r.PathValue("account"))
	if role, _ := r.Context().Value(CtxRole).(domain.Role); account != caller && role != domain.RoleAdmin {
		writeStatus(w, http.StatusForbidden, string(domain.CodeUnauthorized), "cannot read another account's balance")
		return
	}

	amount, err := h.svc.GetBalance(r.Context(), account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, domain.Balance{Account: account, Amount: amount})
}

func (h *APIHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := queryInt(q.Get("after"))
	if err != nil || after < 0 {
		writeStatus(w, http.StatusBadRequest, "bad_request", "after must be a non-negative integer")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil || limit < 0 {
		writeStatus(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}

	events, err := h.svc.ListEvents(r.Context(), after, int(limit))
	if err != nil {
		h.writeError(w, err)
		return
	}
	next := after
	if n := len(events); n > 0 {
		next = events[n-1].Seq
	}
	h.writeJSON(w, http.StatusOK, eventsResponse{Events: events, Next: next})
}

func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.SetFee(r.Context(), caller, req.Fee); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) Pause(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.Pause(r.Context(), caller); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unpause(r.Context(), caller); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	amount, err := h.svc.Withdraw(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, withdrawResponse{Amount: amount})
}

func (h *APIHandler) caller(w http.ResponseWriter, r *http.Request) (domain.Account, bool) {
	acct, ok := AccountFrom(r.Context())
	if !ok {
		h.logger.Warn("request reached a protected handler without an account", "path", r.URL.Path)
		writeStatus(w, http.StatusUnauthorized, "unauthenticated", "missing account context")
	}
	return acct, ok
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps ledger rejections to their HTTP status; anything else is a 500.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	code, ok := domain.CodeOf(err)
	if !ok {
		h.logger.Error("request failed", "error", err)
		writeStatus(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	var le *domain.LedgerError
	msg := err.Error()
	if errors.As(err, &le) {
		msg = le.Message
	}
	writeStatus(w, StatusFor(code), string(code), msg)
}

// StatusFor returns the HTTP status for a ledger error code.
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidName, domain.CodeInvalidAddress, domain.CodeInvalidAmount:
		return http.StatusBadRequest
	case domain.CodeInsufficientPayment:
		return http.StatusPaymentRequired
	case domain.CodeNotNameOwner, domain.CodeUnauthorized:
		return http.StatusForbidden
	case domain.CodeNameNotRegistered:
		return http.StatusNotFound
	case domain.CodeNameAlreadyRegistered:
		return http.StatusConflict
	case domain.CodeNameExpired:
		return http.StatusGone
	case domain.CodePaused:
		return http.StatusServiceUnavailable
	case domain.CodeSettlementFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeStatus(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errCode, Message: msg})
}

func queryInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
