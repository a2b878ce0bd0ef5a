package carrier

import (
	"sync"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"go.uber.org/zap"
)

// Registry resolves carrier adapters by code. Unknown or unconfigured carriers
// resolve to the mock adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[fulfillment.CarrierCode]fulfillment.CarrierAdapter
	fallback fulfillment.CarrierAdapter
}

// NewRegistry creates a registry whose fallback is mock
func NewRegistry(mock fulfillment.CarrierAdapter) *Registry {
	r := &Registry{
		adapters: make(map[fulfillment.CarrierCode]fulfillment.CarrierAdapter),
		fallback: mock,
	}
	r.adapters[mock.Code()] = mock
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(adapter fulfillment.CarrierAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Code()] = adapter
}

// Resolve returns the adapter for code, or the fallback
func (r *Registry) Resolve(code fulfillment.CarrierCode) fulfillment.CarrierAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if adapter, ok := r.adapters[code]; ok {
		return adapter
	}
	return r.fallback
}

// Fallback returns the mock adapter
func (r *Registry) Fallback() fulfillment.CarrierAdapter {
	return r.fallback
}

// Codes lists the registered carrier codes
func (r *Registry) Codes() []fulfillment.CarrierCode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]fulfillment.CarrierCode, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	return codes
}

// NewRegistryFromEnv registers FedEx when its FEDEX_* credentials are
// complete. Otherwise fedex resolves to the mock adapter.
func NewRegistryFromEnv(logger *zap.Logger, opts ...FedexOption) *Registry {
	registry := NewRegistry(NewMockAdapter())

	cfg, ok := LoadFedexConfigFromEnv()
	if !ok {
		logger.Warn("FedEx credentials incomplete, fedex resolves to the mock adapter")
		return registry
	}
	adapter, err := NewFedexAdapter(cfg, append([]FedexOption{WithFedexLogger(logger)}, opts...)...)
	if err != nil {
		logger.Warn("FedEx adapter disabled", zap.Error(err))
		return registry
	}
	registry.Register(adapter)
	logger.Info("FedEx adapter registered",
		zap.String("environment", cfg.Environment),
		zap.String("base_url", cfg.BaseURL))
	return registry
}
