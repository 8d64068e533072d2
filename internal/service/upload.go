package service

import (
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"postguard/internal/pkg/moderator"

	"github.com/go-kratos/kratos/v2/errors"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

var ErrPayloadTooLarge = errors.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large")

// upload is a parsed multipart request. Close releases every opened part and
// the temporary files backing them.
type upload struct {
	form  *multipart.Form
	files []multipart.File
}

func parseUpload(w http.ResponseWriter, r *http.Request, maxBody int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return nil, ErrPayloadTooLarge
		}
		return nil, errors.BadRequest("INVALID_MULTIPART", "request must be multipart/form-data")
	}
	return &upload{form: r.MultipartForm}, nil
}

// Value returns the first value of a form field.
func (u *upload) Value(field string) string {
	if vs := u.form.Value[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Items opens every file sent under the given fields, in field order.
func (u *upload) Items(fields ...string) ([]*moderator.MediaItem, error) {
	var items []*moderator.MediaItem
	for _, field := range fields {
		for _, fh := range u.form.File[field] {
			item, err := u.open(fh)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// Item opens the first file of field, or returns nil when none was sent.
func (u *upload) Item(field string) (*moderator.MediaItem, error) {
	fhs := u.form.File[field]
	if len(fhs) == 0 {
		return nil, nil
	}
	return u.open(fhs[0])
}

func (u *upload) open(fh *multipart.FileHeader) (*moderator.MediaItem, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	u.files = append(u.files, f)
	return &moderator.MediaItem{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     f,
	}, nil
}

func (u *upload) Close() {
	for _, f := range u.files {
		f.Close()
	}
	u.form.RemoveAll()
}
