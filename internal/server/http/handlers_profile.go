package http

import (
	"net/http"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
	"github.com/dmitrijs2005/lostfound/internal/server/services"
)

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "update_profile", http.StatusUnauthorized, msgNoToken, common.ErrUnauthenticated)
		return
	}

	f, err := h.readForm(w, r, "photo")
	if err != nil {
		h.writeMappedError(w, r, "update_profile", err)
		return
	}

	updated, err := h.profiles.Update(r.Context(), account.ID, services.ProfileUpdate{
		DisplayName: f.get("displayName"),
		Address: models.Address{
			Street:  f.get("street"),
			City:    f.get("city"),
			State:   f.get("state"),
			Zip:     f.get("zip"),
			Country: f.get("country"),
		},
		Photo: f.image,
	})
	if err != nil {
		h.writeMappedError(w, r, "update_profile", err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Public())
}
