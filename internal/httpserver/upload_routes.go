package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatcore/internal/domain"
	"chatcore/internal/service"
)

const (
	// multipartOverhead is the slack allowed on top of the attachment limit
	// for multipart boundaries and part headers.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// handleUploadAttachment accepts a multipart upload in field "file" and sends
// it as an image or file message. Bodies over the limit are refused before
// anything is stored.
func handleUploadAttachment(msgSvc *service.MessageService, events Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := CurrentIdentity(r)
		if !ok {
			unauthorized(w)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, msgSvc.MaxAttachmentBytes()+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, domain.ErrTooLarge)
				return
			}
			writeError(w, r, domain.InvalidArgument("expected a multipart/form-data body"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, domain.InvalidArgument("attachment file is required"))
			return
		}
		defer file.Close()

		msg, err := msgSvc.SendAttachment(r.Context(), identity, chi.URLParam(r, "conversationID"), service.AttachmentUpload{
			Name: header.Filename,
			Size: header.Size,
			Body: file,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		events.EmitNewMessage(r.Context(), msg)
		writeJSON(w, http.StatusCreated, msg)
	}
}
