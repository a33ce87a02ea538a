package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lemonhealth.app/backend/internal/apperr"
	"lemonhealth.app/backend/internal/core"
)

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	filename, contentType, data, err := readUpload(w, r, "file", core.MaxDocumentBytes)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	doc, err := h.documents.Upload(r.Context(), userFrom(r.Context()).ID, filename, contentType, data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, "document_uploaded", doc)
}

func (h *APIHandler) ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "documents_retrieved", docs)
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		h.respondError(w, r, apperr.New(apperr.DocumentNotFound))
		return
	}

	doc, err := h.documents.Get(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, "document_retrieved", doc)
}
