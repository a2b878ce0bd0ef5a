package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineConfig holds the label defaults of a Pipeline
type PipelineConfig struct {
	// AutoLabel builds a label right after listing -> sold
	AutoLabel      bool
	DefaultCarrier fulfillment.CarrierCode
	DefaultService fulfillment.ServiceLevel
}

// TransitionCommand is a transition request as received from a client
type TransitionCommand struct {
	ItemID          uuid.UUID
	Target          fulfillment.ItemStatus
	Actor           string
	BuyerRef        string
	ShippingAddress fulfillment.Address
	// BundleMembers are other sold items of the buyer to ship with this one
	BundleMembers []uuid.UUID
}

// TransitionOutcome is everything a transition produced
type TransitionOutcome struct {
	Item     *fulfillment.Item
	Order    *fulfillment.Order
	Label    *fulfillment.LabelArtifact
	Warning  string
	Decision *ConsolidationDecision
}

// Pipeline runs a transition and, for a sale, the consolidation and label
// steps that follow it. Notifications and activity entries are produced by
// bus handlers reacting to the published events.
type Pipeline struct {
	transitions  *TransitionService
	consolidator *Consolidator
	labels       *LabelBuilder
	store        fulfillment.Store
	cfg          PipelineConfig
	logger       *zap.Logger
}

// NewPipeline creates a Pipeline
func NewPipeline(
	store fulfillment.Store,
	transitions *TransitionService,
	consolidator *Consolidator,
	labels *LabelBuilder,
	cfg PipelineConfig,
	log *zap.Logger,
) *Pipeline {
	if !cfg.DefaultCarrier.IsValid() {
		cfg.DefaultCarrier = fulfillment.CarrierFedex
	}
	if !cfg.DefaultService.IsValid() {
		cfg.DefaultService = fulfillment.ServiceStandard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		transitions:  transitions,
		consolidator: consolidator,
		labels:       labels,
		store:        store,
		cfg:          cfg,
		logger:       log,
	}
}

// Transition applies cmd. A committed transition stays committed even when
// the label step fails; the error is returned alongside the outcome then.
func (p *Pipeline) Transition(ctx context.Context, cmd TransitionCommand) (*TransitionOutcome, error) {
	ctx = logger.WithActor(ctx, cmd.Actor)

	if len(cmd.BundleMembers) > 0 {
		if cmd.Target != fulfillment.ItemStatusSold {
			return nil, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("Bundle members only apply to a sale, not a move to %s", cmd.Target))
		}
		buyer := strings.TrimSpace(cmd.BuyerRef)
		if buyer == "" {
			return nil, shared.NewPreconditionError("Buyer reference is required to mark an item as sold")
		}
		if err := p.consolidator.Validate(ctx, buyer, cmd.ItemID, cmd.BundleMembers); err != nil {
			return nil, err
		}
	}

	res, err := p.transitions.Transition(ctx, TransitionRequest{
		ItemID:          cmd.ItemID,
		Target:          cmd.Target,
		Actor:           cmd.Actor,
		BuyerRef:        cmd.BuyerRef,
		ShippingAddress: cmd.ShippingAddress,
	})
	if err != nil {
		return nil, err
	}

	outcome := &TransitionOutcome{Item: res.Item, Order: res.Order}
	for _, event := range res.Events {
		if event.EventType() != fulfillment.EventTypeLabelRequested {
			continue
		}
		if !p.cfg.AutoLabel && len(cmd.BundleMembers) == 0 {
			continue
		}
		if err := p.consolidateAndLabel(ctx, event, cmd.BundleMembers, outcome); err != nil {
			logger.WithLogger(ctx, p.logger).Warn("Label step failed after transition",
				zap.String("item_id", cmd.ItemID.String()),
				zap.Error(err))
			return outcome, err
		}
	}
	return outcome, nil
}

func (p *Pipeline) consolidateAndLabel(ctx context.Context, event fulfillment.Event, bundleNow []uuid.UUID, outcome *TransitionOutcome) error {
	decision, err := p.consolidator.Consolidate(ctx, event, bundleNow)
	if err != nil {
		return err
	}
	outcome.Decision = decision
	if !decision.Ready {
		return nil
	}

	item, err := p.store.Items().FindByID(ctx, outcome.Item.ID)
	if err != nil {
		return err
	}
	outcome.Item = item
	order, err := p.store.Orders().FindByID(ctx, decision.OrderID)
	if err != nil {
		return err
	}
	outcome.Order = order

	if !p.cfg.AutoLabel {
		return nil
	}
	result, err := p.labels.BuildLabel(ctx, decision.OrderID, p.cfg.DefaultCarrier, p.cfg.DefaultService)
	if err != nil {
		return err
	}
	outcome.Label = result.Artifact
	outcome.Order = result.Order
	outcome.Warning = result.Warning
	return nil
}

// BuildLabel labels an order on request. Empty carrier or service select the
// configured defaults.
func (p *Pipeline) BuildLabel(ctx context.Context, orderID uuid.UUID, carrier, service, actor string) (*LabelResult, error) {
	if actor != "" {
		ctx = logger.WithActor(ctx, actor)
	}
	code := p.cfg.DefaultCarrier
	if strings.TrimSpace(carrier) != "" {
		parsed, err := fulfillment.ParseCarrierCode(carrier)
		if err != nil {
			return nil, err
		}
		code = parsed
	}
	level := p.cfg.DefaultService
	if strings.TrimSpace(service) != "" {
		parsed, err := fulfillment.ParseServiceLevel(service)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	return p.labels.BuildLabel(ctx, orderID, code, level)
}

// CreateItem registers an item at intake
func (p *Pipeline) CreateItem(ctx context.Context, req CreateItemRequest) (*fulfillment.Item, error) {
	return p.transitions.CreateItem(ctx, req)
}
