package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/graph/graphtest"
	"github.com/ekaya-inc/schema-graph/pkg/models"
)

func TestStore(t *testing.T) {
	graphtest.RunStoreSuite(t, func(t *testing.T) graph.Store { return New() })
}

func TestStore_Unavailable(t *testing.T) {
	s := New()
	s.Unavailable = true

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrGraphUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), apperrors.ErrGraphUnavailable)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	o, err := s.ImportSchemaObject(context.Background(), models.KindTable, "employees", "")
	require.NoError(t, err)
	o.PhysicalName = "mutated"

	got, err := s.FindByName(context.Background(), "employees")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_ConcurrentImports(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ImportSchemaObject(ctx, models.KindTable, "employees", "")
			_, _ = s.ImportField(ctx, models.ObjectRef{PhysicalName: "employees"}, "emp_id", "")
		}()
	}
	wg.Wait()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Objects, 1)
	assert.Len(t, snap.Fields, 1)
}
