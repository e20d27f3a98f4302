package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/processors"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

type TransactionHandler struct {
	db          *sql.DB
	categorizer *processors.Categorizer
}

func NewTransactionHandler(db *sql.DB, categorizer *processors.Categorizer) *TransactionHandler {
	return &TransactionHandler{db: db, categorizer: categorizer}
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid or missing account_id", http.StatusBadRequest)
		return
	}
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		utils.SendJSONError(w, "from and to query parameters are required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	txs, err := store.ListTransactions(h.db, accountID, from, to)
	if err != nil {
		logger.L.Error("Failed to list transactions", "accountID", accountID, "error", err)
		utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	utils.SendJSON(w, http.StatusOK, txs)
}

// HandleApprove confirms a transaction's category. Approval is the rule
// learning hook: the payee/category pair becomes (or reinforces) an exact
// rule for future imports.
func (h *TransactionHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	tx, err := store.GetTransactionByID(h.db, txID)
	if err != nil {
		h.sendStoreError(w, txID, err, "Failed to load transaction")
		return
	}
	if err := store.ApproveTransaction(h.db, txID); err != nil {
		h.sendStoreError(w, txID, err, "Failed to approve transaction")
		return
	}
	if tx.CategoryID != nil {
		if err := h.categorizer.CreateRuleFromApproval(tx.Payee, tx.Description, *tx.CategoryID); err != nil {
			logger.L.Warn("Failed to learn rule from approval", "transactionID", txID, "error", err)
		}
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (h *TransactionHandler) HandleSetCategory(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	var payload struct {
		CategoryID *int64 `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if payload.CategoryID != nil {
		if _, err := store.GetCategoryByID(h.db, *payload.CategoryID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.SendJSONError(w, "Category not found", http.StatusNotFound)
				return
			}
			logger.L.Error("Failed to load category", "categoryID", *payload.CategoryID, "error", err)
			utils.SendJSONError(w, "Failed to load category", http.StatusInternalServerError)
			return
		}
	}
	if err := store.SetTransactionCategory(h.db, txID, payload.CategoryID); err != nil {
		h.sendStoreError(w, txID, err, "Failed to set category")
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *TransactionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	txID, ok := h.transactionID(w, r)
	if !ok {
		return
	}
	if err := store.SoftDeleteTransaction(h.db, txID); err != nil {
		h.sendStoreError(w, txID, err, "Failed to delete transaction")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TransactionHandler) transactionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid transaction id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *TransactionHandler) sendStoreError(w http.ResponseWriter, txID int64, err error, fallback string) {
	if errors.Is(err, store.ErrNotFound) {
		utils.SendJSONError(w, "Transaction not found", http.StatusNotFound)
		return
	}
	logger.L.Error(fallback, "transactionID", txID, "error", err)
	utils.SendJSONError(w, fallback, http.StatusInternalServerError)
}
