package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type certificateResolver interface {
	ResolveDownload(ctx context.Context, token string) (io.ReadCloser, string, error)
}

// CertificateHandler streams completion certificates behind signed links.
type CertificateHandler struct {
	service certificateResolver
}

// NewCertificateHandler builds a new handler.
func NewCertificateHandler(service certificateResolver) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Download godoc
// @Summary Download a completion certificate
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /certificates/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	body, filename, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, -1, "application/pdf", body, nil)
}
