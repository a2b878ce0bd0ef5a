package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	appfulfillment "github.com/fulfillment/backend/internal/application/fulfillment"
	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/fulfillment/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FulfillmentHandler serves item transitions, orders and labels
type FulfillmentHandler struct {
	BaseHandler
	pipeline *appfulfillment.Pipeline
	queries  *appfulfillment.QueryService
}

// NewFulfillmentHandler creates a new FulfillmentHandler
func NewFulfillmentHandler(pipeline *appfulfillment.Pipeline, queries *appfulfillment.QueryService) *FulfillmentHandler {
	return &FulfillmentHandler{pipeline: pipeline, queries: queries}
}

// actorFor prefers the authenticated or header actor over the body
func actorFor(c *gin.Context, bodyActor string) string {
	if actor := middleware.GetActor(c); actor != "" {
		return actor
	}
	return strings.TrimSpace(bodyActor)
}

// CreateItem registers an item at intake
// POST /fulfillment/items
func (h *FulfillmentHandler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	item, err := h.pipeline.CreateItem(c.Request.Context(), appfulfillment.CreateItemRequest{
		SKU:        req.SKU,
		SellerID:   req.SellerID,
		Category:   req.Category,
		Price:      req.Price,
		LocationID: req.LocationID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toItemResponse(item))
}

// GetItem returns one item
// GET /fulfillment/items/:id
func (h *FulfillmentHandler) GetItem(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	item, err := h.queries.GetItem(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toItemResponse(item))
}

// TransitionItem moves an item to targetStatus. A sale may carry
// bundleMembers, other sold items of the same buyer shipped together.
// POST /fulfillment/items/:id/transitions
func (h *FulfillmentHandler) TransitionItem(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req TransitionItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}
	target, err := fulfillment.ParseItemStatus(req.TargetStatus)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	members := make([]uuid.UUID, 0, len(req.BundleMembers))
	for _, raw := range req.BundleMembers {
		memberID, err := uuid.Parse(raw)
		if err != nil {
			h.HandleError(c, shared.NewDomainError(shared.CodeInvalidInput, "Invalid bundle member id: "+raw))
			return
		}
		members = append(members, memberID)
	}

	outcome, err := h.pipeline.Transition(c.Request.Context(), appfulfillment.TransitionCommand{
		ItemID:          id,
		Target:          target,
		Actor:           actorFor(c, req.Actor),
		BuyerRef:        req.BuyerRef,
		ShippingAddress: req.ShippingAddress.toDomain(),
		BundleMembers:   members,
	})
	if outcome == nil {
		h.HandleError(c, err)
		return
	}

	resp := TransitionResponse{
		Item:          toItemResponse(outcome.Item),
		Order:         toOrderResponse(outcome.Order),
		LabelArtifact: toLabelArtifactResponse(outcome.Label, outcome.Label != nil && outcome.Warning == ""),
		Warning:       outcome.Warning,
	}
	if err != nil {
		// the transition is committed; only the label step failed
		logger.GetGinLogger(c).Warn("Transition committed without label", zap.Error(err))
		resp.Warning = "label not generated: " + err.Error()
	}
	h.Success(c, resp)
}

// GetOrder returns an order with its items and label
// GET /fulfillment/orders/:id
func (h *FulfillmentHandler) GetOrder(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	view, err := h.queries.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, OrderDetailResponse{
		Order:         *toOrderResponse(view.Order),
		Items:         toItemResponses(view.Items),
		LabelArtifact: toLabelArtifactResponse(view.Label, true),
	})
}

// BuildLabel generates the shipping label of an order. An order that already
// has a label gets it back unchanged.
// POST /fulfillment/orders/:id/label
func (h *FulfillmentHandler) BuildLabel(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	var req BuildLabelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			h.HandleBindError(c, err)
			return
		}
	}

	res, err := h.pipeline.BuildLabel(c.Request.Context(), id, req.Carrier, req.Service, actorFor(c, req.Actor))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := LabelResponse{
		LabelArtifact: *toLabelArtifactResponse(res.Artifact, res.Saved()),
		Order:         toOrderResponse(res.Order),
		Warning:       res.Warning,
	}
	if res.Existing {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// LabelDocument downloads the stored label of an order. Stores that hand out
// presigned URLs answer with a redirect.
// GET /fulfillment/orders/:id/label/document
func (h *FulfillmentHandler) LabelDocument(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	doc, err := h.queries.LabelDocument(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if doc.URL != "" {
		c.Redirect(http.StatusFound, doc.URL)
		return
	}
	defer doc.Body.Close()

	filename := doc.Order.OrderNumber + ".pdf"
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc.Body, map[string]string{
		"Content-Disposition": `attachment; filename="` + filename + `"`,
		"X-Tracking-Number":   doc.Artifact.TrackingNumber,
	})
}
