/*
handlers.go - HTTP handlers for the ledger operations and audit surface

VALIDATION:
  Handlers validate shape (parseable JSON, representable amounts) and leave
  business rules to the core, which fails fast before any mutation.

ERROR MAPPING:
  400: invalid input, insufficient funds, same-account transfer, bad batch
  404: unknown account or entry hash
  409: transaction conflict (safe to retry)
  500: everything else
  Batch failures carry the failing item's index and redacted context.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: routing and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/chainledger/ledger"
)

// Handler holds the handlers' single dependency: the ledger service.
type Handler struct {
	Svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{Svc: svc}
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := ledger.MoneyFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Svc.Deposit(r.Context(), ledger.DepositParams{
		AccountNumber: req.AccountNumber,
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositDTO(res))
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := ledger.MoneyFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Svc.Withdraw(r.Context(), ledger.WithdrawParams{
		AccountNumber: req.AccountNumber,
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawDTO(res))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := ledger.MoneyFromDecimal(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Svc.Transfer(r.Context(), ledger.TransferParams{
		From:        req.From,
		To:          req.To,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferDTO(res))
}

func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]ledger.BatchItem, 0, len(req.Items))
	for i, it := range req.Items {
		amount, err := ledger.MoneyFromDecimal(it.Amount)
		if err != nil {
			writeError(w, &ledger.BatchItemError{
				Index:    i,
				Kind:     ledger.OperationType(it.Type),
				Accounts: batchAccounts(it),
				Err:      err,
			})
			return
		}
		items = append(items, ledger.BatchItem{
			Kind:          ledger.OperationType(it.Type),
			AccountNumber: it.AccountNumber,
			From:          it.From,
			To:            it.To,
			Amount:        amount,
			Description:   it.Description,
		})
	}

	res, err := h.Svc.ProcessBatch(r.Context(), items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchDTO(res))
}

func batchAccounts(it BatchItemRequest) []string {
	if it.From != "" || it.To != "" {
		return []string{it.From, it.To}
	}
	return []string{it.AccountNumber}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.GetBalance(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceDTO(res))
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.VerifyChain(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyDTO(res))
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	q := ledger.EntryQuery{
		Page:  queryInt(r, "page", 1),
		Limit: queryInt(r, "limit", 20),
		Type:  ledger.OperationType(r.URL.Query().Get("type")),
	}
	if from, ok := queryTime(r, "from"); ok {
		q.From = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		q.To = &to
	}

	res, err := h.Svc.ListEntries(r.Context(), chi.URLParam(r, "number"), q)
	if err != nil {
		writeError(w, err)
		return
	}

	page := LedgerPageDTO{
		AccountNumber: res.AccountNumber,
		Page:          res.Page,
		Limit:         res.Limit,
		Total:         res.Total,
		Items:         make([]EntryDTO, 0, len(res.Entries)),
	}
	for _, e := range res.Entries {
		// Account number lives on the envelope, not on each item.
		page.Items = append(page.Items, entryDTO(e, ""))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	res, err := h.Svc.GetEntry(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entryDTO(res.Entry, res.AccountNumber))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorDTO{Error: msg})
}

func writeError(w http.ResponseWriter, err error) {
	body := ErrorDTO{Error: err.Error()}

	var batchErr *ledger.BatchItemError
	if errors.As(err, &batchErr) {
		body.Context = &BatchContextDTO{
			Index:    batchErr.Index,
			Type:     string(batchErr.Kind),
			Amount:   batchErr.Amount.String(),
			Accounts: batchErr.Accounts,
		}
	}

	writeJSON(w, statusFor(err), body)
}

func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func queryTime(r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
