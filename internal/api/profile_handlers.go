package api

import (
	"errors"
	"io"
	"net/http"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/core"
)

const maxPictureUpload = 5 << 20

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), userFrom(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "profile_retrieved", profile)
}

func (h *APIHandler) SaveProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ProfileInput
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	profile, err := h.profiles.Save(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "profile_saved", profile)
}

func (h *APIHandler) DeleteProfileHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(r.Context(), userFrom(r.Context()).ID); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "profile_deleted", nil)
}

func (h *APIHandler) UploadProfilePictureHandler(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, err := readUpload(w, r, "file", maxPictureUpload)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	profile, err := h.profiles.UploadPicture(r.Context(), userFrom(r.Context()), filename, contentType, data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "profile_picture_uploaded", profile)
}

// readUpload reads one multipart file field, rejecting bodies over limit.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) (string, string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	file, header, err := r.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", nil, apperr.New(apperr.UnsupportedFile)
		}
		return "", "", nil, apperr.Invalid(map[string]string{field: "file required"})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", "", nil, apperr.Wrap(apperr.UnsupportedFile, err)
	}
	if int64(len(data)) > limit {
		return "", "", nil, apperr.New(apperr.UnsupportedFile)
	}
	return header.Filename, header.Header.Get("Content-Type"), data, nil
}
