package response

import (
	"log/slog"

	"ticketly/internal/shared/apperrors"
	"ticketly/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError translates a tagged service error into the wire taxonomy.
// INTERNAL errors get a correlation id and the full cause goes to the log,
// never to the client.
func RespondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := apperrors.HTTPStatus(kind)
	message := apperrors.MessageOf(err)

	if kind == apperrors.KindInternal {
		correlationID := uuid.New().String()
		logger.GetDefault().ErrorContext(c.Request.Context(), "internal error",
			slog.String("correlation_id", correlationID),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(status, StandardApiResponse{
			Status:     "error",
			StatusCode: status,
			Code:       string(kind),
			Message:    "internal error",
			Errors:     gin.H{"correlation_id": correlationID},
		})
		return
	}

	c.JSON(status, StandardApiResponse{
		Status:     "error",
		StatusCode: status,
		Code:       string(kind),
		Message:    message,
	})
}
