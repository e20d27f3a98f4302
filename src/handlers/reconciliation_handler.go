package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Edmaione/Terrain-Financials-sub000/src/config"
	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/services"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
	"github.com/Edmaione/Terrain-Financials-sub000/src/validation"
)

type ReconciliationHandler struct {
	reconcileService services.ReconcileService
	extractService   services.ExtractService
}

func NewReconciliationHandler(reconcile services.ReconcileService, extract services.ExtractService) *ReconciliationHandler {
	return &ReconciliationHandler{reconcileService: reconcile, extractService: extract}
}

func (h *ReconciliationHandler) HandleCreateStatement(w http.ResponseWriter, r *http.Request) {
	var stmt models.BankStatement
	if err := json.NewDecoder(r.Body).Decode(&stmt); err != nil {
		utils.SendJSONError(w, "Invalid statement payload", http.StatusBadRequest)
		return
	}
	if stmt.AccountID == 0 || stmt.PeriodStart == "" || stmt.PeriodEnd == "" {
		utils.SendJSONError(w, "account_id, period_start and period_end are required", http.StatusBadRequest)
		return
	}
	if err := h.reconcileService.CreateStatement(&stmt); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to create statement", "accountID", stmt.AccountID, "error", err)
		utils.SendJSONError(w, "Failed to create statement", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusCreated, stmt)
}

func (h *ReconciliationHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	summary, err := h.reconcileService.GetSummary(statementID)
	if err != nil {
		h.sendServiceError(w, statementID, err, "Failed to build summary")
		return
	}

	etag, err := utils.GenerateETag(summary)
	if err == nil {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	utils.SendJSON(w, http.StatusOK, summary)
}

func (h *ReconciliationHandler) HandleSetCleared(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	var payload struct {
		TransactionIDs []int64 `json:"transaction_ids"`
		Cleared        bool    `json:"cleared"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if len(payload.TransactionIDs) == 0 {
		utils.SendJSONError(w, "transaction_ids is required", http.StatusBadRequest)
		return
	}
	if err := h.reconcileService.SetCleared(statementID, payload.TransactionIDs, payload.Cleared); err != nil {
		h.sendServiceError(w, statementID, err, "Failed to update cleared flags")
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *ReconciliationHandler) HandleAutoMatch(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	matched, err := h.reconcileService.AutoMatchByHash(statementID)
	if err != nil {
		h.sendServiceError(w, statementID, err, "Auto-match failed")
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]int{"matched": matched})
}

func (h *ReconciliationHandler) HandleMatchExtracted(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Rows          []models.ExtractedTransaction `json:"rows"`
		CreateMissing bool                          `json:"create_missing"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.SendJSONError(w, "Invalid payload", http.StatusBadRequest)
			return
		}
	}
	report, err := h.reconcileService.MatchExtracted(statementID, payload.Rows, payload.CreateMissing)
	if err != nil {
		if errors.Is(err, services.ErrNoExtractedRows) {
			utils.SendJSONError(w, "Statement has no extracted rows; supply rows or run extraction first", http.StatusConflict)
			return
		}
		h.sendServiceError(w, statementID, err, "Extracted matching failed")
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}

func (h *ReconciliationHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	if err := h.reconcileService.Reconcile(statementID); err != nil {
		if errors.Is(err, services.ErrNotReconcilable) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		h.sendServiceError(w, statementID, err, "Reconcile failed")
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func (h *ReconciliationHandler) HandleUnreconcile(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	if err := h.reconcileService.Unreconcile(statementID); err != nil {
		if errors.Is(err, services.ErrNotReconciled) {
			utils.SendJSONError(w, "Statement is not reconciled", http.StatusConflict)
			return
		}
		h.sendServiceError(w, statementID, err, "Unreconcile failed")
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "unreconciled"})
}

// HandleExtract uploads a statement document and runs the extraction
// pipeline over it. The sanitized rows are stored on the statement for the
// matching pass.
func (h *ReconciliationHandler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	statementID, ok := h.statementID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateClientContentType(fileHeader.Header.Get("Content-Type"), validation.KindPDF); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file, validation.KindPDF); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	document, err := io.ReadAll(io.LimitReader(file, config.Cfg.MaxUploadSizeBytes+1))
	if err != nil {
		utils.SendJSONError(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}
	if int64(len(document)) > config.Cfg.MaxUploadSizeBytes {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	logger.L.Info("Processing statement extraction", "statementID", statementID, "filename", fileHeader.Filename, "bytes", len(document))
	report, err := h.extractService.ExtractStatement(r.Context(), statementID, document, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExtractorDisabled):
			utils.SendJSONError(w, "Statement extraction is not configured", http.StatusServiceUnavailable)
		case errors.Is(err, services.ErrStatementNotFound):
			utils.SendJSONError(w, "Statement not found", http.StatusNotFound)
		case errors.Is(err, services.ErrParsingFailed):
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			logger.L.Error("Extraction failed", "statementID", statementID, "error", err)
			utils.SendJSONError(w, "Extraction failed", http.StatusInternalServerError)
		}
		return
	}
	utils.SendJSON(w, http.StatusOK, report)
}

func (h *ReconciliationHandler) statementID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid statement id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *ReconciliationHandler) sendServiceError(w http.ResponseWriter, statementID int64, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrStatementNotFound):
		utils.SendJSONError(w, "Statement not found", http.StatusNotFound)
	case errors.Is(err, services.ErrAccountNotFound):
		utils.SendJSONError(w, "Account not found", http.StatusNotFound)
	default:
		logger.L.Error(fallback, "statementID", statementID, "error", err)
		utils.SendJSONError(w, fallback, http.StatusInternalServerError)
	}
}
