package function

import (
	"io"
	"net/http"
)

// Response is the single value a handler produces: either a JSON payload
// or a file stream, never both.
type Response struct {
	Status  int
	Payload any
	File    *FileResponse
}

// FileResponse streams a stored file back to the caller.
type FileResponse struct {
	Name        string
	ContentType string
	Content     io.ReadCloser
}

// JSON returns a 200 response carrying the given payload.
func JSON(payload any) *Response {
	return &Response{Status: http.StatusOK, Payload: payload}
}

// File returns a 200 response streaming a file. The transport layer closes
// the content reader.
func File(name, contentType string, content io.ReadCloser) *Response {
	return &Response{
		Status: http.StatusOK,
		File:   &FileResponse{Name: name, ContentType: contentType, Content: content},
	}
}
