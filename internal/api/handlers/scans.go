// scans.go — обработчики /api/v1/scans: приём пакетов и статус заданий.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/quarantine-module/internal/api/errors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/generated"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/status"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
)

// formFieldFiles — поле multipart-формы с файлами пакета.
const formFieldFiles = "files"

// SubmitScan — POST /api/v1/scans.
// multipart/form-data: files (один или несколько), source_type, submitted_by.
// Возвращает 202 с ID задания; сканирование идёт в фоне.
func (h *APIHandler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxMemory); err != nil {
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[formFieldFiles]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			apierrors.ValidationError(w, "Не удалось прочитать файл "+fh.Filename)
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Content: f})
	}

	jobID, err := h.scans.Submit(r.Context(), uploads, r.FormValue("source_type"), r.FormValue("submitted_by"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.accepted(w, jobID)
}

// SubmitScanPath — POST /api/v1/scans/path.
// Ставит в очередь все обычные файлы каталога (например, USB-носителя).
func (h *APIHandler) SubmitScanPath(w http.ResponseWriter, r *http.Request) {
	var req generated.SubmitScanPathJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if req.Path == "" {
		apierrors.ValidationError(w, "Путь (path) обязателен")
		return
	}

	jobID, err := h.scans.SubmitPath(r.Context(), req.Path, deref(req.SourceType), deref(req.SubmittedBy))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.accepted(w, jobID)
}

func (h *APIHandler) accepted(w http.ResponseWriter, jobID string) {
	w.Header().Set("Location", "/api/v1/scans/"+jobID)
	writeJSON(w, http.StatusAccepted, generated.SubmitResponse{
		JobId:  toUUID(jobID),
		Status: string(status.JobPending),
	})
}

// GetJobStatus — GET /api/v1/scans/{id}.
func (h *APIHandler) GetJobStatus(w http.ResponseWriter, r *http.Request, id generated.JobId) {
	summary, err := h.queries.GetJobStatus(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
