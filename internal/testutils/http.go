package testutils

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// WithChiURLParams puts path parameters into the chi context of req.
func WithChiURLParams(req *http.Request, params map[string]string) *http.Request {
	chiCtx := chi.NewRouteContext()
	for k, v := range params {
		chiCtx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chiCtx))
}

// FilePart is one file of a multipart form.
type FilePart struct {
	Field string
	Name  string
	Data  []byte
}

// Multipart encodes fields and files as multipart/form-data and returns the
// body with its content type.
func Multipart(fields map[string]string, files ...FilePart) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	for _, f := range files {
		part, _ := w.CreateFormFile(f.Field, f.Name)
		_, _ = part.Write(f.Data)
	}
	_ = w.Close()

	return body, w.FormDataContentType()
}
