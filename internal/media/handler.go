package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ayush/scrollable/internal/apperr"
	"github.com/ayush/scrollable/internal/auth"
	"github.com/ayush/scrollable/internal/httpx"
)

// multipart headers and boundaries ride on top of the file itself
const multipartOverhead = 1 << 20

type Handler struct {
	ingestor *Ingestor
	maxBytes int64
	log      logrus.FieldLogger
}

func NewHandler(in *Ingestor, maxBytes int64, log logrus.FieldLogger) *Handler {
	return &Handler{ingestor: in, maxBytes: maxBytes, log: log}
}

func (h *Handler) tooLarge() error {
	return apperr.Validation(fmt.Sprintf("File too large, Maximum size %d MB", h.maxBytes>>20))
}

var errNoFile = apperr.Validation("No file uploaded")

// formFile accepts the file under "media" and falls back to "file".
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	f, hdr, err := r.FormFile("media")
	if errors.Is(err, http.ErrMissingFile) {
		f, hdr, err = r.FormFile("file")
	}
	return f, hdr, err
}

// Upload handles POST /upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			httpx.Fail(w, r, h.log, h.tooLarge())
			return
		}
		httpx.Fail(w, r, h.log, errNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := formFile(r)
	if err != nil {
		httpx.Fail(w, r, h.log, errNoFile)
		return
	}
	defer file.Close()
	if hdr.Size > h.maxBytes {
		httpx.Fail(w, r, h.log, h.tooLarge())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		httpx.Fail(w, r, h.log, apperr.Wrap(apperr.KindUploadFailed, msgUploadFailed, err))
		return
	}

	up, err := h.ingestor.Upload(r.Context(), auth.UserID(r.Context()), data, hdr.Filename, hdr.Header.Get("Content-Type"))
	if err != nil {
		httpx.Fail(w, r, h.log, err)
		return
	}
	httpx.Success(w, http.StatusOK, up)
}
