package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutu-network/cityledger/internal/domain"
	"github.com/tutu-network/cityledger/internal/infra/storetest"
)

func TestConformance_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := Open("", nil)
		require.NoError(t, err)
		return s
	})
}

func TestConformance_OnDisk(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := Open(t.TempDir(), nil)
		require.NoError(t, err)
		return s
	})
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Update(context.Background(), func(tx domain.Txn) error {
		return tx.Put("fund", "state", []byte(`{"balance":5}`))
	}))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.View(context.Background(), func(tx domain.Txn) error {
		v, err := tx.Get("fund", "state")
		require.Equal(t, `{"balance":5}`, string(v))
		return err
	}))
}

func TestPingAfterClose(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreClosed)
}
