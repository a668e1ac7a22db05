package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
)

type categoryView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	IsDefault bool   `json:"is_default"`
	AICreated bool   `json:"ai_created"`
}

func categoryViewOf(cat *model.Category) categoryView {
	return categoryView{
		ID:        cat.ID,
		Name:      cat.Name,
		Icon:      cat.Icon,
		IsDefault: cat.IsDefault,
		AICreated: cat.AICreated,
	}
}

// ListCategories returns the caller's effective category set: system
// defaults plus their own.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	categories, err := h.store.ListCategories(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list categories", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}

	views := make([]categoryView, 0, len(categories))
	for i := range categories {
		views = append(views, categoryViewOf(&categories[i]))
	}

	respondJSON(w, http.StatusOK, map[string]any{"categories": views})
}

type createCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// CreateCategory adds a user-owned category.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	cat := &model.Category{
		Name:   req.Name,
		Icon:   req.Icon,
		UserID: &userID,
	}

	if err := h.store.CreateCategory(r.Context(), cat); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			respondError(w, http.StatusConflict, "category already exists")
			return
		}
		h.logger.Error("failed to create category", "name", req.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create category")
		return
	}

	respondJSON(w, http.StatusCreated, categoryViewOf(cat))
}

// DeleteCategory removes a user-owned category. System defaults cannot be
// deleted.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := h.store.DeleteCategory(r.Context(), id, userID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			respondError(w, http.StatusNotFound, "category not found")
			return
		}
		h.logger.Error("failed to delete category", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete category")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
