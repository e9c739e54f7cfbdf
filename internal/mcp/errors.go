// Package mcp exposes a docindex index over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/Aman-CERP/docindex/internal/errors"
)

// MCP error codes. Values below -32000 are implementation defined.
const (
	ErrCodeIndexNotFound   = -32001
	ErrCodeEmbeddingFailed = -32002
	ErrCodeTimeout         = -32003
	ErrCodeIndexCorrupt    = -32004

	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound is returned by CallTool for unknown names.
var ErrToolNotFound = errors.New("tool not found")

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if e, ok := apperrors.As(err); ok {
		return mapAppError(e)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapAppError(e *apperrors.Error) *MCPError {
	message := e.Message
	if e.Suggestion != "" {
		message = message + ". " + e.Suggestion
	}

	code := ErrCodeInternalError
	switch e.Category {
	case apperrors.CategoryProvider:
		code = ErrCodeEmbeddingFailed
	case apperrors.CategoryValidation:
		code = ErrCodeInvalidParams
	case apperrors.CategoryIO:
		switch e.Code {
		case apperrors.ErrCodeFileNotFound:
			code = ErrCodeIndexNotFound
		case apperrors.ErrCodeIndexCorrupt, apperrors.ErrCodeIndexFormat:
			code = ErrCodeIndexCorrupt
		}
	}
	return &MCPError{Code: code, Message: message}
}
