package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bonyankop-api/internal/models"
	"github.com/noah-isme/bonyankop-api/pkg/middleware/requestid"
)

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// Audit appends an entry to the audit trail once the wrapped handler has
// answered with a non-error status. Write failures are logged only.
func Audit(recorder AuditRecorder, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if recorder == nil || status >= 400 {
			return
		}

		entry := &models.AuditEntry{
			Action:     action,
			Resource:   resource,
			Route:      c.Request.Method + " " + c.FullPath(),
			StatusCode: status,
			RequestID:  requestid.Value(c),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		}
		if claims := Claims(c); claims != nil {
			actor := claims.UserID
			entry.ActorID = &actor
			entry.ActorRole = string(claims.Role)
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}

		// The request context may already be cancelled once the client has its answer.
		if err := recorder.Record(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("audit write failed",
				zap.String("action", action),
				zap.String("request_id", entry.RequestID),
				zap.Error(err),
			)
		}
	}
}
