package fulfillment

import (
	"context"
	"errors"
	"io"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// OrderView is an order with its items and label, if any
type OrderView struct {
	Order *fulfillment.Order
	Items []fulfillment.Item
	Label *fulfillment.LabelArtifact
}

// LabelDocument is either an open stream or a direct download URL
type LabelDocument struct {
	Artifact *fulfillment.LabelArtifact
	Order    *fulfillment.Order
	// URL is set when the store can hand out a presigned link
	URL  string
	Body io.ReadCloser
}

// QueryService serves the read side of the pipeline
type QueryService struct {
	store     fulfillment.Store
	documents fulfillment.LabelStore
}

// NewQueryService creates a new QueryService
func NewQueryService(store fulfillment.Store, documents fulfillment.LabelStore) *QueryService {
	return &QueryService{store: store, documents: documents}
}

// GetItem returns one item
func (s *QueryService) GetItem(ctx context.Context, id uuid.UUID) (*fulfillment.Item, error) {
	return s.store.Items().FindByID(ctx, id)
}

// GetOrder returns an order with its items and label
func (s *QueryService) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.Items().FindByOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &OrderView{Order: order, Items: items}

	label, err := s.store.Labels().FindByOrder(ctx, id)
	switch {
	case err == nil:
		view.Label = label
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}
	return view, nil
}

// LabelDocument resolves the stored label of an order. A presigned URL is
// preferred; otherwise the document is opened for streaming and the caller
// must close Body.
func (s *QueryService) LabelDocument(ctx context.Context, orderID uuid.UUID) (*LabelDocument, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	artifact, err := s.store.Labels().FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if artifact.LabelBytesRef == "" {
		return nil, shared.NewDomainError(shared.CodeNotFound, "Label document was not stored")
	}

	doc := &LabelDocument{Artifact: artifact, Order: order}
	url, err := s.documents.URL(ctx, artifact.LabelBytesRef)
	if err != nil {
		return nil, err
	}
	if url != "" {
		doc.URL = url
		return doc, nil
	}
	body, err := s.documents.Open(ctx, artifact.LabelBytesRef)
	if err != nil {
		return nil, err
	}
	doc.Body = body
	return doc, nil
}
