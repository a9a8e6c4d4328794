package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.Store { return New() })
}

func TestClosed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreClosed)
	err := s.Update(context.Background(), func(domain.Txn) error { return nil })
	require.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestViewRejectsWrites(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx domain.Txn) error {
		return tx.Put("c", "k", []byte("v"))
	})
	require.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Update(ctx, func(domain.Txn) error { return nil }), context.Canceled)
}
