// Package httpapi carries the response envelope shared by all handlers:
// {"status": "success"|"error", "message": ..., "data": ...}.
package httpapi

import "github.com/gin-gonic/gin"

// Response is the wire envelope for every endpoint.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Respond writes the envelope with the given HTTP status code.
func Respond(c *gin.Context, code int, message string, data any) {
	status := "success"
	if code >= 400 {
		status = "error"
	}
	c.JSON(code, Response{Status: status, Message: message, Data: data})
}
