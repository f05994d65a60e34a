package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ItemFilter{
		Type:  models.ItemType(strings.TrimSpace(q.Get("type"))),
		Query: strings.TrimSpace(q.Get("q")),
		Limit: parseIntDefault(q.Get("limit"), 0),
	}

	items, err := h.items.List(r.Context(), filter)
	if err != nil {
		h.writeMappedError(w, r, "list_items", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeMappedError(w, r, "get_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "create_item", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
		return
	}

	changes, err := h.itemChanges(w, r)
	if err != nil {
		h.writeMappedError(w, r, "create_item", err)
		return
	}

	item, err := h.items.Create(r.Context(), account.ID, changes)
	if err != nil {
		h.writeMappedError(w, r, "create_item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "update_item", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
		return
	}

	changes, err := h.itemChanges(w, r)
	if err != nil {
		h.writeMappedError(w, r, "update_item", err)
		return
	}

	item, err := h.items.Update(r.Context(), account.ID, chi.URLParam(r, "id"), changes)
	if err != nil {
		h.writeMappedError(w, r, "update_item", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "delete_item", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
		return
	}

	if err := h.items.Delete(r.Context(), account.ID, chi.URLParam(r, "id")); err != nil {
		h.writeMappedError(w, r, "delete_item", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Item removed"})
}

// itemChanges reads the item fields that were sent; absent fields stay nil.
func (h *Handler) itemChanges(w http.ResponseWriter, r *http.Request) (services.ItemChanges, error) {
	f, err := h.readForm(w, r, "image")
	if err != nil {
		return services.ItemChanges{}, err
	}

	changes := services.ItemChanges{
		Title:       f.ptr("title"),
		Description: f.ptr("description"),
		Location:    f.ptr("location"),
		Image:       f.image,
	}
	if v := f.ptr("type"); v != nil {
		t := models.ItemType(strings.ToLower(strings.TrimSpace(*v)))
		changes.Type = &t
	}
	if v := f.ptr("dateLostOrFound"); v != nil {
		d, err := parseDate(*v)
		if err != nil {
			return services.ItemChanges{}, common.NewValidationError("dateLostOrFound", "Please add a valid date the item was lost or found")
		}
		changes.DateLostOrFound = &d
	}
	return changes, nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
