package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

func (r *Router) handleListProfiles(w http.ResponseWriter, req *http.Request) {
	if r.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}

	profiles, err := r.profiles.List(req.Context())
	if err != nil {
		r.logger.Printf("httpapi: list profiles failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (r *Router) handleUpdateProfile(w http.ResponseWriter, req *http.Request) {
	if r.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}

	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	var body struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := r.profiles.SetNickname(req.Context(), id, body.Nickname); err != nil {
		r.logger.Printf("httpapi: update profile %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "nickname": body.Nickname})
}

func (r *Router) handleDeleteProfile(w http.ResponseWriter, req *http.Request) {
	if r.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}

	id, err := uuid.Parse(req.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return
	}

	if err := r.profiles.Delete(req.Context(), id); err != nil {
		r.logger.Printf("httpapi: delete profile %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete profile")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
