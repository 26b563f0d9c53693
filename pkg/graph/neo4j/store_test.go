//go:build integration

package neo4j

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/graph"
	"github.com/ekaya-inc/schema-graph/pkg/graph/graphtest"
	"github.com/ekaya-inc/schema-graph/pkg/testhelpers"
)

func newTestStore(t *testing.T) graph.Store {
	t.Helper()
	container := testhelpers.GetTestNeo4j(t)

	s, err := NewStore(context.Background(), Config{
		URI:          container.URI,
		User:         container.User,
		Password:     container.Password,
		Database:     "neo4j",
		QueryTimeout: 10 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.(*store).write(context.Background(), `MATCH (n) DETACH DELETE n`, nil)
	require.NoError(t, err)
	return s
}

func TestNeo4jStore(t *testing.T) {
	graphtest.RunStoreSuite(t, newTestStore)
}

func TestNeo4jStore_Ping(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
