package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

const defaultPageSize = 50

// transactionView is the API shape of a transaction.
type transactionView struct {
	ID            string     `json:"id"`
	Amount        string     `json:"amount"`
	Direction     string     `json:"direction"`
	Currency      string     `json:"currency"`
	Merchant      string     `json:"merchant,omitempty"`
	Bank          string     `json:"bank,omitempty"`
	AccountSuffix string     `json:"account_suffix,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
	Source        string     `json:"source"`
	Confidence    float64    `json:"confidence"`
	CategoryID    *int64     `json:"category_id"`
	OccurredAt    *time.Time `json:"occurred_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func viewOf(txn *model.Transaction) transactionView {
	return transactionView{
		ID:            txn.ID,
		Amount:        txn.Amount.StringFixed(2),
		Direction:     string(txn.Direction),
		Currency:      txn.Currency,
		Merchant:      txn.Merchant,
		Bank:          txn.Bank,
		AccountSuffix: txn.AccountSuffix,
		Remarks:       txn.Remarks,
		Source:        string(txn.Source),
		Confidence:    txn.Confidence,
		CategoryID:    txn.CategoryID,
		OccurredAt:    txn.OccurredAt,
		CreatedAt:     txn.CreatedAt,
	}
}

// ListTransactions returns the caller's transactions, newest first.
// Supported query parameters: start, end (RFC 3339 or YYYY-MM-DD),
// category_id, limit, offset.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	filter, err := parseTransactionFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("failed to list transactions", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	views := make([]transactionView, 0, len(transactions))
	for i := range transactions {
		views = append(views, viewOf(&transactions[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{"transactions": views})
}

func parseTransactionFilter(r *http.Request) (service.TransactionFilter, error) {
	filter := service.TransactionFilter{Limit: defaultPageSize}
	q := r.URL.Query()

	if s := q.Get("start"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return filter, errors.New("invalid start date")
		}
		filter.StartDate = &t
	}
	if s := q.Get("end"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			return filter, errors.New("invalid end date")
		}
		filter.EndDate = &t
	}
	if s := q.Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return filter, errors.New("invalid category_id")
		}
		filter.CategoryID = &id
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > 500 {
			return filter, errors.New("limit must be between 1 and 500")
		}
		filter.Limit = limit
	}
	if s := q.Get("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// updateTransactionRequest carries the user-editable fields. Absent fields
// are left untouched.
type updateTransactionRequest struct {
	CategoryID *int64     `json:"category_id"`
	Merchant   *string    `json:"merchant"`
	Remarks    *string    `json:"remarks"`
	OccurredAt *time.Time `json:"occurred_at"`
}

// UpdateTransaction patches a transaction the caller owns.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	id := chi.URLParam(r, "id")

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txn, err := h.store.GetTransactionByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load transaction", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	if txn == nil || txn.UserID != userID {
		// Hide other users' transactions behind the same 404.
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if req.CategoryID != nil {
		cat, err := h.store.GetCategoryByID(r.Context(), *req.CategoryID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to check category")
			return
		}
		if cat == nil || !cat.VisibleTo(userID) {
			respondError(w, http.StatusBadRequest, "unknown category")
			return
		}
	}

	update := service.TransactionUpdate{
		CategoryID: req.CategoryID,
		Merchant:   req.Merchant,
		Remarks:    req.Remarks,
		OccurredAt: req.OccurredAt,
	}

	if err := h.store.UpdateTransaction(r.Context(), id, update); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Error("failed to update transaction", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update transaction")
		return
	}

	updated, err := h.store.GetTransactionByID(r.Context(), id)
	if err != nil || updated == nil {
		respondError(w, http.StatusInternalServerError, "failed to reload transaction")
		return
	}

	respondJSON(w, http.StatusOK, viewOf(updated))
}
