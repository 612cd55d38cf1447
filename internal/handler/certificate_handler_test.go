package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
)

type certificateResolverStub struct{}

func (certificateResolverStub) ResolveDownload(_ context.Context, token string) (io.ReadCloser, string, error) {
	switch token {
	case "good":
		return io.NopCloser(strings.NewReader("%PDF-1.3 cert")), "certificate-p-1.pdf", nil
	case "gone":
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
	default:
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid certificate link")
	}
}

func TestCertificateHandlerDownload(t *testing.T) {
	h := NewCertificateHandler(certificateResolverStub{})

	w := serve(t, http.MethodGet, "/certificates/:token", "/certificates/good", nil, nil, h.Download)
	requireStatus(t, w, http.StatusOK)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="certificate-p-1.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3 cert", w.Body.String())

	w = serve(t, http.MethodGet, "/certificates/:token", "/certificates/tampered", nil, nil, h.Download)
	requireStatus(t, w, http.StatusForbidden)

	w = serve(t, http.MethodGet, "/certificates/:token", "/certificates/gone", nil, nil, h.Download)
	requireStatus(t, w, http.StatusNotFound)
}
