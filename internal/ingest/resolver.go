package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// CategoryResolver turns an extraction engine's category decision into a
// concrete category id, creating AI-proposed categories on demand.
type CategoryResolver struct {
	store  service.Storage
	logger *slog.Logger
}

// NewCategoryResolver creates a resolver over the given store.
func NewCategoryResolver(store service.Storage, logger *slog.Logger) *CategoryResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryResolver{store: store, logger: logger}
}

// Resolve maps a decision to a category the user can see. Resolution never
// fails the caller: any dead end degrades to the Uncategorized default, and
// if even that lookup fails the transaction is stored with no category at
// all rather than dropped.
func (r *CategoryResolver) Resolve(ctx context.Context, userID string, decision model.CategoryDecision) *model.Category {
	switch decision.Type {
	case model.CategorySelectExisting:
		if cat := r.resolveReference(ctx, userID, decision.Reference); cat != nil {
			return cat
		}
	case model.CategoryCreateNew:
		if cat := r.createCategory(ctx, userID, decision.NewName, decision.NewIcon); cat != nil {
			return cat
		}
	}

	return r.fallback(ctx, userID)
}

// resolveReference tries the reference as an id first, then as a
// case-insensitive name within the user's effective set.
func (r *CategoryResolver) resolveReference(ctx context.Context, userID, reference string) *model.Category {
	if reference == "" {
		return nil
	}

	if id, err := strconv.ParseInt(reference, 10, 64); err == nil {
		cat, err := r.store.GetCategoryByID(ctx, id)
		if err != nil {
			r.logger.Warn("category lookup by id failed", "id", id, "error", err)
		}
		if cat != nil && cat.VisibleTo(userID) {
			return cat
		}
	}

	cat, err := r.store.GetCategoryByName(ctx, userID, reference)
	if err != nil {
		r.logger.Warn("category lookup by name failed", "name", reference, "error", err)
		return nil
	}
	return cat
}

// createCategory inserts an AI-proposed category. A duplicate means another
// message created it concurrently, so the loser of the race looks it up and
// uses it.
func (r *CategoryResolver) createCategory(ctx context.Context, userID, name, icon string) *model.Category {
	if existing, err := r.store.GetCategoryByName(ctx, userID, name); err == nil && existing != nil {
		return existing
	}

	cat := &model.Category{
		Name:      name,
		Icon:      icon,
		UserID:    &userID,
		AICreated: true,
	}

	err := r.store.CreateCategory(ctx, cat)
	if err == nil {
		return cat
	}

	if errors.Is(err, common.ErrDuplicateEntry) {
		existing, lookupErr := r.store.GetCategoryByName(ctx, userID, name)
		if lookupErr == nil && existing != nil {
			return existing
		}
		err = fmt.Errorf("post-duplicate lookup failed: %w", errors.Join(err, lookupErr))
	}

	r.logger.Warn("failed to create proposed category", "name", name, "error", err)
	return nil
}

func (r *CategoryResolver) fallback(ctx context.Context, userID string) *model.Category {
	cat, err := r.store.GetCategoryByName(ctx, userID, model.UncategorizedName)
	if err != nil || cat == nil {
		r.logger.Error("category resolution degraded, storing transaction without category",
			"user_id", userID, "error", err)
		return nil
	}
	return cat
}
