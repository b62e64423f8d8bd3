package badger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/store"
	"github.com/marmos91/depositd/pkg/store/badger"
	"github.com/marmos91/depositd/pkg/store/storetest"
)

func TestBadgerConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Client {
		s, err := badger.Open(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
