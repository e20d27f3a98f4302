package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
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

type ImportHandler struct {
	importService services.ImportService
}

func NewImportHandler(service services.ImportService) *ImportHandler {
	return &ImportHandler{importService: service}
}

// HandleSubmitImport accepts a multipart upload: the file, the target
// account and the user-confirmed column mapping. The import runs in the
// background; the response is the queued batch handle.
func (h *ImportHandler) HandleSubmitImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	if err := validation.ValidateClientContentType(fileHeader.Header.Get("Content-Type"), validation.KindCSV); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file, validation.KindCSV); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	accountID, err := strconv.ParseInt(r.FormValue("account_id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid or missing account_id", http.StatusBadRequest)
		return
	}
	var mapping models.ColumnMapping
	if err := json.Unmarshal([]byte(r.FormValue("mapping")), &mapping); err != nil {
		utils.SendJSONError(w, "Invalid mapping JSON", http.StatusBadRequest)
		return
	}
	strategy := models.AmountStrategy(r.FormValue("strategy"))
	if strategy == "" {
		strategy = models.AmountSigned
	}

	req := services.ImportRequest{
		AccountID:    accountID,
		FileName:     fileHeader.Filename,
		Mapping:      mapping,
		Strategy:     strategy,
		Locale:       models.DateLocale(r.FormValue("locale")),
		SourceSystem: r.FormValue("source_system"),
	}

	logger.L.Info("Processing import request", "accountID", accountID, "filename", fileHeader.Filename)
	batch, err := h.importService.SubmitImport(r.Context(), file, req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDuplicateUpload):
			utils.SendJSON(w, http.StatusConflict, batch)
		case errors.Is(err, services.ErrAccountNotFound):
			utils.SendJSONError(w, "Account not found", http.StatusNotFound)
		case errors.Is(err, services.ErrParsingFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("Failed to submit import", "accountID", accountID, "error", err)
			utils.SendJSONError(w, "Failed to submit import", http.StatusInternalServerError)
		}
		return
	}
	utils.SendJSON(w, http.StatusAccepted, batch)
}

func (h *ImportHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid batch id", http.StatusBadRequest)
		return
	}
	batch, err := h.importService.GetBatch(batchID)
	if err != nil {
		if errors.Is(err, services.ErrBatchNotFound) {
			utils.SendJSONError(w, "Batch not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to load batch", "batchID", batchID, "error", err)
		utils.SendJSONError(w, "Failed to load batch", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, batch)
}

func (h *ImportHandler) HandleCancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "Invalid batch id", http.StatusBadRequest)
		return
	}
	if err := h.importService.CancelBatch(batchID); err != nil {
		if errors.Is(err, services.ErrBatchNotFound) {
			utils.SendJSONError(w, "Batch not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to cancel batch", "batchID", batchID, "error", err)
		utils.SendJSONError(w, "Failed to cancel batch", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}
