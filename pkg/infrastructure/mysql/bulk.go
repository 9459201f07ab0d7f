package mysql

import (
	"context"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx/reflectx"
	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/dbpool/pkg/common/errors"
)

// Column declares one target column of a bulk load. Type optionally
// forces an explicit conversion of the projected values.
type Column struct {
	Name string
	Type ParamType
}

// BulkLoader inserts batches of entities with a single multi-row
// statement: one round trip regardless of entity count.
type BulkLoader struct {
	registry *Registry
	logger   logging.Logger
	mapper   *reflectx.Mapper
}

func NewBulkLoader(registry *Registry, logger logging.Logger) *BulkLoader {
	return &BulkLoader{
		registry: registry,
		logger:   logger,
		mapper:   reflectx.NewMapper("db"),
	}
}

// BulkInsert appends one row per entity, projecting each declared column
// out of the entity in declaration order. Entities are structs with db
// tags or map[string]interface{}; an entity missing a declared column
// contributes a SQL NULL for that cell. Zero entities is a no-op.
func (l *BulkLoader) BulkInsert(
	ctx context.Context,
	poolName string,
	table string,
	columns []Column,
	entities []interface{},
) (int64, error) {
	if table == "" {
		return 0, l.bulkError(poolName, table, errors.New("table must not be empty"))
	}
	if len(columns) == 0 {
		return 0, l.bulkError(poolName, table, errors.New("columns must not be empty"))
	}
	if len(entities) == 0 {
		return 0, nil
	}

	query, args, err := l.buildInsert(table, columns, entities)
	if err != nil {
		return 0, l.bulkError(poolName, table, err)
	}

	pool, err := l.registry.GetPool(ctx, poolName, nil)
	if err != nil {
		return 0, l.bulkError(poolName, table, err)
	}

	conn, err := pool.Connection(ctx)
	if err != nil {
		return 0, l.bulkError(poolName, table, err)
	}

	result, err := execStatement(ctx, conn, query, args)
	err = liberr.Join(err, conn.Close())
	if err != nil {
		return 0, l.bulkError(poolName, table, err)
	}
	return result.RowsAffected, nil
}

func (l *BulkLoader) buildInsert(table string, columns []Column, entities []interface{}) (string, []interface{}, error) {
	names := make([]string, len(columns))
	for i, column := range columns {
		if column.Name == "" {
			return "", nil, errors.New("column name must not be empty")
		}
		names[i] = column.Name
	}
	rowPlaceholder := "(?" + strings.Repeat(", ?", len(columns)-1) + ")"

	var query strings.Builder
	query.WriteString("INSERT INTO ")
	query.WriteString(table)
	query.WriteString(" (")
	query.WriteString(strings.Join(names, ", "))
	query.WriteString(") VALUES ")

	args := make([]interface{}, 0, len(entities)*len(columns))
	for i, entity := range entities {
		if i > 0 {
			query.WriteString(", ")
		}
		query.WriteString(rowPlaceholder)
		for _, column := range columns {
			value, err := l.projectColumn(entity, column)
			if err != nil {
				return "", nil, err
			}
			args = append(args, value)
		}
	}

	return query.String(), args, nil
}

func (l *BulkLoader) projectColumn(entity interface{}, column Column) (interface{}, error) {
	raw, ok, err := l.fieldValue(entity, column.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		// missing column binds NULL rather than rejecting the batch
		return nil, nil
	}

	value, err := convertValue(column.Type, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "column %q", column.Name)
	}
	return value, nil
}

func (l *BulkLoader) fieldValue(entity interface{}, name string) (interface{}, bool, error) {
	if m, ok := entity.(map[string]interface{}); ok {
		value, present := m[name]
		return value, present, nil
	}

	v := reflect.Indirect(reflect.ValueOf(entity))
	if v.Kind() != reflect.Struct {
		return nil, false, errors.Errorf("cannot project column %q out of %T", name, entity)
	}

	typeMap := l.mapper.TypeMap(v.Type())
	fi, ok := typeMap.Names[name]
	if !ok {
		return nil, false, nil
	}
	return reflectx.FieldByIndexes(v, fi.Index).Interface(), true, nil
}

func (l *BulkLoader) bulkError(poolName, table string, cause error) error {
	l.logger.WithFields(logging.Fields{
		"pool":  poolName,
		"table": table,
	}).Error(cause, "bulk insert failed")
	return &CommandError{
		Pool:    poolName,
		Command: "bulk insert into " + table,
		Err:     cause,
	}
}
