// Package storage keeps label documents outside the database.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	infraconfig "github.com/fulfillment/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"

	labelPrefix = "labels/"
)

// ErrInvalidRef is returned for references that do not name a label document
var ErrInvalidRef = shared.NewDomainError(shared.CodeInvalidInput, "invalid label reference")

// LabelKey returns the object key of an order's label document
func LabelKey(orderNumber string) (string, error) {
	if orderNumber == "" || strings.ContainsAny(orderNumber, `/\`) || strings.Contains(orderNumber, "..") {
		return "", fmt.Errorf("%w: order number %q", ErrInvalidRef, orderNumber)
	}
	return labelPrefix + orderNumber + ".pdf", nil
}

func validateRef(ref string) error {
	if !strings.HasPrefix(ref, labelPrefix) || path.Clean(ref) != ref || strings.Contains(ref, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}

// NewLabelStore builds the label store selected by cfg.Driver
func NewLabelStore(cfg *infraconfig.StorageConfig, logger *zap.Logger) (fulfillment.LabelStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	switch cfg.Driver {
	case DriverLocal, "":
		return NewLocalLabelStore(cfg.LocalDir, WithLocalLogger(logger))
	case DriverS3:
		return NewS3LabelStore(cfg, WithLogger(logger))
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
