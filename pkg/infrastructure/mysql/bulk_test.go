package mysql

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
)

func newTestBulkLoader(t *testing.T) (*BulkLoader, *Executor) {
	t.Helper()
	registry := newTestRegistry(t, nil, nil)
	require.NoError(t, registry.SetPool(context.Background(), "writePool", sqliteConfig(t)))
	executor := NewExecutor(registry, logging.NewNopLogger())
	createItemsTable(t, executor, "writePool")
	return NewBulkLoader(registry, logging.NewNopLogger()), executor
}

func TestBulkInsert(t *testing.T) {
	ctx := context.Background()
	columns := []Column{{Name: "id"}, {Name: "title"}}

	t.Run("zero entities is a no-op", func(t *testing.T) {
		loader, executor := newTestBulkLoader(t)

		affected, err := loader.BulkInsert(ctx, "writePool", "items", columns, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), affected)
		assert.Equal(t, int64(0), countItems(t, executor))
	})

	t.Run("inserts one row per struct entity", func(t *testing.T) {
		loader, executor := newTestBulkLoader(t)

		type item struct {
			ID    int64  `db:"id"`
			Title string `db:"title"`
		}
		entities := make([]interface{}, 0, 5)
		for i := 1; i <= 5; i++ {
			entities = append(entities, item{ID: int64(i), Title: fmt.Sprintf("row-%d", i)})
		}

		affected, err := loader.BulkInsert(ctx, "writePool", "items", columns, entities)
		require.NoError(t, err)
		assert.Equal(t, int64(5), affected)
		assert.Equal(t, int64(5), countItems(t, executor))
	})

	t.Run("missing column binds null", func(t *testing.T) {
		loader, executor := newTestBulkLoader(t)

		entities := []interface{}{
			map[string]interface{}{"id": int64(1), "title": "full"},
			map[string]interface{}{"id": int64(2)},
		}

		affected, err := loader.BulkInsert(ctx, "writePool", "items", columns, entities)
		require.NoError(t, err)
		assert.Equal(t, int64(2), affected)

		rows, err := executor.RunCommand(ctx, "writePool", KindQuery,
			"SELECT id, title FROM items ORDER BY id", nil, nil)
		require.NoError(t, err)
		require.Len(t, rows.Rows, 2)
		assert.Equal(t, "full", rows.Rows[0]["title"])
		assert.Nil(t, rows.Rows[1]["title"])
	})

	t.Run("typed column forces conversion", func(t *testing.T) {
		loader, executor := newTestBulkLoader(t)

		typedColumns := []Column{{Name: "id"}, {Name: "payload", Type: TypeJSON}}
		entities := []interface{}{
			map[string]interface{}{
				"id":      int64(1),
				"payload": map[string]int{"a": 1},
			},
		}

		affected, err := loader.BulkInsert(ctx, "writePool", "items", typedColumns, entities)
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)

		rows, err := executor.RunCommand(ctx, "writePool", KindQuery,
			"SELECT payload FROM items WHERE id = 1", nil, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, fmt.Sprintf("%s", rows.Rows[0]["payload"]))
	})

	t.Run("validates table and columns", func(t *testing.T) {
		loader, _ := newTestBulkLoader(t)

		_, err := loader.BulkInsert(ctx, "writePool", "", columns, nil)
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)

		_, err = loader.BulkInsert(ctx, "writePool", "items", nil, nil)
		require.ErrorAs(t, err, &cmdErr)
	})

	t.Run("unknown pool surfaces as CommandError", func(t *testing.T) {
		loader, _ := newTestBulkLoader(t)

		entities := []interface{}{map[string]interface{}{"id": int64(1)}}
		_, err := loader.BulkInsert(ctx, "nope", "items", []Column{{Name: "id"}}, entities)
		var cmdErr *CommandError
		require.ErrorAs(t, err, &cmdErr)
		var configErr *ConfigError
		assert.ErrorAs(t, err, &configErr)
	})
}
