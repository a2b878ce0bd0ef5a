package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LocalLabelStore writes label documents below a directory on local disk
type LocalLabelStore struct {
	root   string
	logger *zap.Logger
}

// LocalLabelStoreOption configures a LocalLabelStore
type LocalLabelStoreOption func(*LocalLabelStore)

// WithLocalLogger sets the logger
func WithLocalLogger(logger *zap.Logger) LocalLabelStoreOption {
	return func(s *LocalLabelStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLocalLabelStore creates root if needed
func NewLocalLabelStore(root string, opts ...LocalLabelStoreOption) (*LocalLabelStore, error) {
	if root == "" {
		return nil, errors.New("storage local directory is required")
	}
	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(labelPrefix)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create label directory: %w", err)
	}
	s := &LocalLabelStore{root: root, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put writes the document atomically and returns its key
func (s *LocalLabelStore) Put(_ context.Context, orderNumber string, data []byte) (string, error) {
	key, err := LabelKey(orderNumber)
	if err != nil {
		return "", err
	}
	target := s.path(key)

	tmp, err := os.CreateTemp(filepath.Dir(target), ".label-*")
	if err != nil {
		return "", fmt.Errorf("failed to create label file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write label file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write label file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to store label file: %w", err)
	}

	s.logger.Debug("Label stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

// Open returns the stored document
func (s *LocalLabelStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, shared.NewDomainError(shared.CodeNotFound, "label document not found: "+ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	return f, nil
}

// URL is always empty: local documents are streamed through the API
func (s *LocalLabelStore) URL(context.Context, string) (string, error) {
	return "", nil
}

func (s *LocalLabelStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

var _ fulfillment.LabelStore = (*LocalLabelStore)(nil)
