// files.go — обработчики /api/v1/files: задержанные файлы и решения проверки.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"

	apierrors "github.com/bigkaa/goartstore/quarantine-module/internal/api/errors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/generated"
	"github.com/bigkaa/goartstore/quarantine-module/internal/domain/model"
	"github.com/bigkaa/goartstore/quarantine-module/internal/service"
)

// toAPIFile преобразует файл карантина в модель API.
func toAPIFile(f *model.File) generated.File {
	findings := make([]generated.Finding, 0, len(f.Findings))
	for _, fd := range f.Findings {
		item := generated.Finding{
			Stage:    fd.Stage,
			Severity: generated.FindingSeverity(fd.Severity),
			Code:     fd.Code,
			Message:  fd.Message,
		}
		if len(fd.Details) > 0 {
			details := fd.Details
			item.Details = &details
		}
		findings = append(findings, item)
	}
	return generated.File{
		Id:               toUUID(f.ID),
		JobId:            toUUID(f.JobID),
		OriginalFilename: f.OriginalFilename,
		SizeBytes:        f.SizeBytes,
		Sha256:           f.SHA256,
		MimeType:         optional(f.MimeType),
		Status:           generated.FileStatus(f.Status),
		CurrentStage:     optional(f.CurrentStage),
		RiskSeverity:     string(f.RiskSeverity),
		Findings:         findings,
		SanitizedPath:    optional(f.SanitizedPath),
		HeldPath:         optional(f.HeldPath),
		DestinationPath:  optional(f.DestinationPath),
		ReviewedBy:       optional(f.ReviewedBy),
		ReviewReason:     optional(f.ReviewReason),
		ReviewedAt:       f.ReviewedAt,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ListHeldFiles — GET /api/v1/files/held?limit=&offset=.
func (h *APIHandler) ListHeldFiles(w http.ResponseWriter, r *http.Request, params generated.ListHeldFilesParams) {
	limit := service.DefaultHeldLimit
	if params.Limit != nil {
		limit = *params.Limit
	}
	offset := 0
	if params.Offset != nil {
		offset = *params.Offset
	}
	if limit < 1 || limit > service.MaxHeldLimit || offset < 0 {
		apierrors.ValidationError(w, fmt.Sprintf("limit должен быть от 1 до %d, offset не меньше 0", service.MaxHeldLimit))
		return
	}

	files, total, err := h.queries.ListHeldFiles(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := generated.HeldFileList{
		Items:  make([]generated.File, 0, len(files)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, f := range files {
		resp.Items = append(resp.Items, toAPIFile(f))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetFile — GET /api/v1/files/{id}.
func (h *APIHandler) GetFile(w http.ResponseWriter, r *http.Request, id generated.FileId) {
	f, err := h.queries.GetFile(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIFile(f))
}

// ListAudit — GET /api/v1/files/{id}/audit.
func (h *APIHandler) ListAudit(w http.ResponseWriter, r *http.Request, id generated.FileId) {
	entries, err := h.queries.ListAudit(r.Context(), id.String())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	resp := generated.AuditEntryList{Items: make([]generated.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Items = append(resp.Items, generated.AuditEntry{
			Id:        toUUID(e.ID),
			Action:    e.Action,
			Actor:     e.Actor,
			Reason:    optional(e.Reason),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ApproveFile — POST /api/v1/files/{id}/approve.
func (h *APIHandler) ApproveFile(w http.ResponseWriter, r *http.Request, id generated.FileId) {
	h.review(w, r, id, h.reviews.Approve)
}

// RejectFile — POST /api/v1/files/{id}/reject.
func (h *APIHandler) RejectFile(w http.ResponseWriter, r *http.Request, id generated.FileId) {
	h.review(w, r, id, h.reviews.Reject)
}

type reviewFunc func(ctx context.Context, fileID, reason, reviewer string) (*model.File, error)

func (h *APIHandler) review(w http.ResponseWriter, r *http.Request, id generated.FileId, decide reviewFunc) {
	var req generated.ApproveFileJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	f, err := decide(r.Context(), id.String(), deref(req.Reason), req.Reviewer)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIFile(f))
}

// toUUID разбирает ID из хранилища; некорректный ID даёт нулевой UUID.
func toUUID(id string) openapi_types.UUID {
	u, _ := uuid.Parse(id)
	return u
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
