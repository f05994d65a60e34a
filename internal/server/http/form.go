package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/lostfound/internal/common"
	"github.com/dmitrijs2005/lostfound/internal/server/models"
)

const (
	multipartMemory = 1 << 20
	// formOverhead is room for the non-file fields of a multipart body.
	formOverhead = 1 << 20
)

// form holds the text fields of a request and its optional image.
type form struct {
	values map[string]string
	image  *models.Upload
}

func (f form) get(key string) string {
	return strings.TrimSpace(f.values[key])
}

// ptr returns nil when key was not sent.
func (f form) ptr(key string) *string {
	v, ok := f.values[key]
	if !ok {
		return nil
	}
	return &v
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.NewValidationError("body", "Malformed request body")
	}
	return nil
}

// readForm accepts multipart, urlencoded or JSON bodies. fileField names the
// multipart part holding an optional image.
func (h *Handler) readForm(w http.ResponseWriter, r *http.Request, fileField string) (form, error) {
	f := form{values: map[string]string{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		raw := map[string]string{}
		if err := decodeBody(r, &raw); err != nil {
			return f, err
		}
		f.values = raw
		return f, nil

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+formOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return f, formError(err, h.opts.MaxUploadBytes)
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		image, err := h.readImage(r, fileField)
		if err != nil {
			return f, err
		}
		f.image = image

	default:
		if err := r.ParseForm(); err != nil {
			return f, formError(err, h.opts.MaxUploadBytes)
		}
	}

	for key, vals := range r.PostForm {
		if len(vals) > 0 {
			f.values[key] = vals[0]
		}
	}
	return f, nil
}

func formError(err error, limit int64) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return tooLarge(limit)
	}
	return common.NewValidationError("body", "Malformed form data")
}

func tooLarge(limit int64) error {
	return common.NewValidationError("image", fmt.Sprintf("File is too large (max %d bytes)", limit))
}

// readImage loads the uploaded file, if any, enforcing the size limit and an
// image content type sniffed from the bytes.
func (h *Handler) readImage(r *http.Request, field string) (*models.Upload, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewValidationError(field, "Malformed file upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		return nil, tooLarge(h.opts.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, common.NewValidationError(field, "Uploaded file is empty")
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, common.NewValidationError(field, "Only image files are allowed")
	}

	return &models.Upload{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
