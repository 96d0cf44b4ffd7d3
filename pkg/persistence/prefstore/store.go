package prefstore

import (
	"context"

	"github.com/go-go-golems/datalens/pkg/chat"
)

const keyModel = "model"

// Store keeps small client preferences such as the selected model.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Close() error
}

// ModelStore exposes the model selection of a Store to the chat controller.
type ModelStore struct {
	Store Store
}

var _ chat.ModelStore = ModelStore{}

func (m ModelStore) GetModel(ctx context.Context) (string, bool, error) {
	return m.Store.Get(ctx, keyModel)
}

func (m ModelStore) SetModel(ctx context.Context, modelID string) error {
	return m.Store.Set(ctx, keyModel, modelID)
}
