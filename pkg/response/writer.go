package response

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/virtual-ta/pkg/errors"
	"github.com/kart-io/virtual-ta/pkg/infra/middleware/common"
)

// Writer provides convenient methods to write responses to a gin context.
type Writer struct {
	c    *gin.Context
	lang string
}

// NewWriter creates a new response writer for the given context.
func NewWriter(c *gin.Context) *Writer {
	return &Writer{c: c}
}

// WithLang sets the language for error messages.
func (w *Writer) WithLang(lang string) *Writer {
	w.lang = lang
	return w
}

func (w *Writer) prepare(r *Response) *Response {
	if id := common.GetRequestID(w.c.Request.Context()); id != "" {
		r.RequestID = id
	}
	return r
}

// OK sends a successful response with data.
func (w *Writer) OK(data interface{}) {
	resp := w.prepare(Success(data))
	w.c.JSON(resp.HTTPStatus(), resp)
}

// Fail sends an error response using Errno and aborts the handler chain.
func (w *Writer) Fail(e *errors.Errno) {
	resp := w.prepare(ErrWithLang(e, w.lang))
	w.c.AbortWithStatusJSON(e.HTTPStatus(), resp)
}

// OK sends a successful response.
func OK(c *gin.Context, data interface{}) {
	NewWriter(c).OK(data)
}

// Fail sends an error response using Errno.
func Fail(c *gin.Context, e *errors.Errno) {
	NewWriter(c).WithLang(c.GetHeader("Accept-Language")).Fail(e)
}
