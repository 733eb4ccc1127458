// Package handler provides HTTP handlers for the docqa service.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/pkg/utils/errors"
	"github.com/kart-io/docqa/pkg/utils/response"
	"github.com/kart-io/docqa/pkg/utils/validator"
)

// Service is the part of biz.RetrievalService used by the HTTP API.
type Service interface {
	Reload(ctx context.Context) (int, error)
	ReloadMessage(n int) string
	Ask(ctx context.Context, userID, question string) (*biz.AskResult, error)
	Stats(ctx context.Context) *biz.Stats
	ClearHistory(ctx context.Context, userID string) error
	SaveDocument(name string, r io.Reader, maxBytes int64) (string, error)
	Ready() bool
}

// DocQAHandler handles docqa HTTP requests.
type DocQAHandler struct {
	service       Service
	maxUploadSize int64
}

// NewDocQAHandler creates a new DocQAHandler.
func NewDocQAHandler(service Service, maxUploadSize int64) *DocQAHandler {
	return &DocQAHandler{service: service, maxUploadSize: maxUploadSize}
}

// ReloadResponse is returned by Reload and Upload.
type ReloadResponse struct {
	Chunks  int    `json:"chunks"`
	Message string `json:"message"`
}

// Reload rebuilds the index from the documents directory.
func (h *DocQAHandler) Reload(c *gin.Context) {
	n, err := h.service.Reload(c.Request.Context())
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, ReloadResponse{Chunks: n, Message: h.service.ReloadMessage(n)})
}

// AskRequest represents a question.
type AskRequest struct {
	UserID   string `json:"user_id" validate:"required,userid"`
	Question string `json:"question" validate:"required,notblank"`
}

// Ask answers a question from the indexed documents.
func (h *DocQAHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}
	if verrs := validator.Global().Struct(&req, validator.LangEN); verrs != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(verrs))
		return
	}

	result, err := h.service.Ask(c.Request.Context(), req.UserID, req.Question)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, result)
}

// Stats returns index statistics.
func (h *DocQAHandler) Stats(c *gin.Context) {
	response.OK(c, h.service.Stats(c.Request.Context()))
}

// ClearHistoryRequest identifies the user whose history is dropped.
type ClearHistoryRequest struct {
	UserID string `uri:"user_id" json:"user_id" validate:"required,userid"`
}

// ClearHistory drops the conversation history of a user.
func (h *DocQAHandler) ClearHistory(c *gin.Context) {
	var req ClearHistoryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}
	if verrs := validator.Global().Struct(&req, validator.LangEN); verrs != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(verrs))
		return
	}

	if err := h.service.ClearHistory(c.Request.Context(), req.UserID); err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, gin.H{"user_id": req.UserID})
}

// UploadResponse is returned by Upload.
type UploadResponse struct {
	File   string          `json:"file"`
	Reload *ReloadResponse `json:"reload,omitempty"`
}

// Upload stores a multipart "file" in the documents directory.
// With ?reload=true the index is rebuilt afterwards.
func (h *DocQAHandler) Upload(c *gin.Context) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+1<<20)
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}
	f, err := header.Open()
	if err != nil {
		response.Fail(c, errors.ErrInvalidRequest.WithCause(err))
		return
	}
	defer func() { _ = f.Close() }()

	name, err := h.service.SaveDocument(header.Filename, f, h.maxUploadSize)
	if err != nil {
		response.Fail(c, err)
		return
	}

	resp := UploadResponse{File: name}
	if c.Query("reload") == "true" {
		n, err := h.service.Reload(c.Request.Context())
		if err != nil {
			response.Fail(c, err)
			return
		}
		resp.Reload = &ReloadResponse{Chunks: n, Message: h.service.ReloadMessage(n)}
	}
	response.OK(c, resp)
}

// Health reports liveness and whether documents are loaded.
func (h *DocQAHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": h.service.Ready()})
}
