package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bonyankop-api/internal/dto"
	"github.com/noah-isme/bonyankop-api/internal/models"
	appErrors "github.com/noah-isme/bonyankop-api/pkg/errors"
	"github.com/noah-isme/bonyankop-api/pkg/response"
)

type projectService interface {
	Start(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error)
	Complete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, id string, req dto.CancelProject) (*dto.ProjectResponse, error)
	AppendWorkNote(ctx context.Context, actor *models.JWTClaims, id string, req dto.AppendWorkNote) (*dto.ProjectResponse, error)
	AttachImages(ctx context.Context, actor *models.JWTClaims, id string, req dto.AttachImages) (*dto.ProjectResponse, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, patch dto.UpdateProject) (*dto.ProjectResponse, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*dto.ProjectResponse, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.ProjectQuery) ([]dto.ProjectResponse, error)
	ListOverdue(ctx context.Context, actor *models.JWTClaims) ([]dto.ProjectResponse, error)
}

// ProjectHandler exposes project endpoints.
type ProjectHandler struct {
	service projectService
}

// NewProjectHandler builds a new handler.
func NewProjectHandler(service projectService) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// List godoc
// @Summary List projects visible to the caller
// @Tags Projects
// @Produce json
// @Param status query []string false "Status filter" collectionFormat(multi)
// @Param active_only query bool false "Only scheduled and in progress"
// @Success 200 {object} response.Envelope
// @Router /projects [get]
func (h *ProjectHandler) List(c *gin.Context) {
	var query dto.ProjectQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	query.Limit, query.Offset = pageParams(c)
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Window(c, items, len(items), query.Limit, query.Offset)
}

// Overdue godoc
// @Summary List projects running past their scheduled end
// @Tags Projects
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /projects/overdue [get]
func (h *ProjectHandler) Overdue(c *gin.Context) {
	items, err := h.service.ListOverdue(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c *gin.Context) {
	h.respond(c)(h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id")))
}

// Update godoc
// @Summary Update project details
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.UpdateProject true "Patch"
// @Success 200 {object} response.Envelope
// @Router /projects/{id} [put]
func (h *ProjectHandler) Update(c *gin.Context) {
	var patch dto.UpdateProject
	if err := bindJSON(c, &patch, "invalid project payload"); err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c)(h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), patch))
}

// Start godoc
// @Summary Start a scheduled project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/start [post]
func (h *ProjectHandler) Start(c *gin.Context) {
	h.respond(c)(h.service.Start(c.Request.Context(), claimsFromContext(c), c.Param("id")))
}

// Complete godoc
// @Summary Complete an in-progress project
// @Tags Projects
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/complete [post]
func (h *ProjectHandler) Complete(c *gin.Context) {
	h.respond(c)(h.service.Complete(c.Request.Context(), claimsFromContext(c), c.Param("id")))
}

// Cancel godoc
// @Summary Cancel an active project
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.CancelProject false "Reason"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/cancel [post]
func (h *ProjectHandler) Cancel(c *gin.Context) {
	var req dto.CancelProject
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req, "invalid cancellation payload"); err != nil {
			response.Error(c, err)
			return
		}
	}
	h.respond(c)(h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"), req))
}

// AppendWorkNote godoc
// @Summary Append a work note to the project journal
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.AppendWorkNote true "Note"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/work-notes [post]
func (h *ProjectHandler) AppendWorkNote(c *gin.Context) {
	var req dto.AppendWorkNote
	if err := bindJSON(c, &req, "invalid work note payload"); err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c)(h.service.AppendWorkNote(c.Request.Context(), claimsFromContext(c), c.Param("id"), req))
}

// AttachImages godoc
// @Summary Attach before, progress or after photos
// @Tags Projects
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param payload body dto.AttachImages true "Images"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/images [post]
func (h *ProjectHandler) AttachImages(c *gin.Context) {
	var req dto.AttachImages
	if err := bindJSON(c, &req, "invalid images payload"); err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c)(h.service.AttachImages(c.Request.Context(), claimsFromContext(c), c.Param("id"), req))
}

func (h *ProjectHandler) respond(c *gin.Context) func(*dto.ProjectResponse, error) {
	return func(project *dto.ProjectResponse, err error) {
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, project, nil)
	}
}
