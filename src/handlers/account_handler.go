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
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

type AccountHandler struct {
	db *sql.DB
}

func NewAccountHandler(db *sql.DB) *AccountHandler {
	return &AccountHandler{db: db}
}

func (h *AccountHandler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var account models.Account
	if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
		utils.SendJSONError(w, "Invalid account payload", http.StatusBadRequest)
		return
	}
	if account.Name == "" || account.Type == "" {
		utils.SendJSONError(w, "name and type are required", http.StatusBadRequest)
		return
	}
	if err := store.CreateAccount(h.db, &account); err != nil {
		logger.L.Error("Failed to create account", "name", account.Name, "error", err)
		utils.SendJSONError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusCreated, account)
}

func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := store.ListAccounts(h.db)
	if err != nil {
		logger.L.Error("Failed to list accounts", "error", err)
		utils.SendJSONError(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	utils.SendJSON(w, http.StatusOK, accounts)
}

// HandleDeactivateAccount flags the account inactive. Accounts with history
// are never deleted.
func (h *AccountHandler) HandleDeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	if err := store.DeactivateAccount(h.db, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to deactivate account", "accountID", id, "error", err)
		utils.SendJSONError(w, "Failed to deactivate account", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *AccountHandler) HandleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var category models.Category
	if err := json.NewDecoder(r.Body).Decode(&category); err != nil {
		utils.SendJSONError(w, "Invalid category payload", http.StatusBadRequest)
		return
	}
	if category.Name == "" || category.Type == "" {
		utils.SendJSONError(w, "name and type are required", http.StatusBadRequest)
		return
	}
	if err := store.CreateCategory(h.db, &category); err != nil {
		logger.L.Error("Failed to create category", "name", category.Name, "error", err)
		utils.SendJSONError(w, "Failed to create category", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusCreated, category)
}

func (h *AccountHandler) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := store.ListCategories(h.db)
	if err != nil {
		logger.L.Error("Failed to list categories", "error", err)
		utils.SendJSONError(w, "Failed to list categories", http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []models.Category{}
	}
	utils.SendJSON(w, http.StatusOK, categories)
}

func (h *AccountHandler) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid category id", http.StatusBadRequest)
		return
	}
	if err := store.DeleteCategory(h.db, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			utils.SendJSONError(w, "Category not found", http.StatusNotFound)
		case errors.Is(err, store.ErrCategoryInUse):
			utils.SendJSONError(w, "Category is referenced by transactions and cannot be deleted", http.StatusConflict)
		default:
			logger.L.Error("Failed to delete category", "categoryID", id, "error", err)
			utils.SendJSONError(w, "Failed to delete category", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
