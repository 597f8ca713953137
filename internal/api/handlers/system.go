// system.go — статистика, настройки сканирования и состояние сигнатур.
package handlers

import (
	"encoding/json"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/quarantine-module/internal/api/errors"
	"github.com/bigkaa/goartstore/quarantine-module/internal/api/generated"
)

// GetStats — GET /api/v1/stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.GetStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetConfig — GET /api/v1/config.
func (h *APIHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Get(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfig — PATCH /api/v1/config.
// Тело — JSON-объект с изменяемыми ключами; неизвестные ключи и null игнорируются.
func (h *APIHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch generated.UpdateConfigJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if patch == nil {
		apierrors.ValidationError(w, "Ожидается JSON-объект")
		return
	}

	cfg, err := h.settings.Update(r.Context(), map[string]any(patch))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetSignatureInfo — GET /api/v1/signatures.
func (h *APIHandler) GetSignatureInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.signatures.GetSignatureInfo(r.Context()))
}
