package usecase

import (
	"context"

	"seald/internal/domain"
)

type Renderer interface {
	Render(shipment domain.Shipment, items []domain.LineItem, final bool) ([]byte, error)
}

type ByteStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

type Digester interface {
	Sum(input []byte) string
	Equal(a, b string) bool
}
