package handler

import (
	appfulfillment "github.com/fulfillment/backend/internal/application/fulfillment"
	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// NotificationHandler serves the durable notification reads
type NotificationHandler struct {
	BaseHandler
	service *appfulfillment.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(service *appfulfillment.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// roleFor resolves the recipient role from the query, then the caller
func roleFor(c *gin.Context, queried string) fulfillment.Role {
	if queried != "" {
		return fulfillment.Role(queried)
	}
	if role := middleware.GetRole(c); role != "" {
		return fulfillment.Role(role)
	}
	return fulfillment.RoleStaff
}

// List returns a role's notifications, newest first. Reconnecting stream
// clients pass since to catch up and get the missed ones oldest first.
// GET /notifications?role=&since=&limit=&unread=
func (h *NotificationHandler) List(c *gin.Context) {
	var req ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
	}
	list, err := h.service.List(c.Request.Context(), appfulfillment.ListNotificationsQuery{
		Role:       roleFor(c, req.Role),
		Since:      req.Since,
		UnreadOnly: req.UnreadOnly,
		Limit:      limit,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toNotificationResponses(list))
}

// MarkRead acknowledges a notification
// POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toNotificationResponse(n))
}
