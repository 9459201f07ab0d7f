package mysql

import (
	"context"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
	liberr "gitea.xscloud.ru/xscloud/dbpool/pkg/common/errors"
)

type CommandKind int

const (
	KindQuery CommandKind = iota
	KindExecute
)

func (k CommandKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindExecute:
		return "execute"
	}
	return "unknown"
}

// Result of one command. Rows is populated for query commands,
// RowsAffected and LastInsertID for execute commands.
type Result struct {
	Rows         []map[string]interface{}
	RowsAffected int64
	LastInsertID int64
}

// Executor resolves pools by name and runs parameterized commands
// against them. Commands use named placeholders (":name").
type Executor struct {
	registry *Registry
	logger   logging.Logger
}

func NewExecutor(registry *Registry, logger logging.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger,
	}
}

// RunCommand executes one command against the named pool: a single round
// trip on a dedicated connection. Failures from pool resolution or
// execution come back as a CommandError wrapping the cause.
func (e *Executor) RunCommand(
	ctx context.Context,
	poolName string,
	kind CommandKind,
	command string,
	inputs []Param,
	outputs []OutParam,
) (*Result, error) {
	argMap, err := bindParams(inputs)
	if err != nil {
		return nil, e.commandError(poolName, kind, command, err)
	}
	return e.run(ctx, poolName, kind, command, argMap, outputs)
}

// ExecuteWithEntity derives the input binds from the entity's fields
// (struct with db tags, or a map) and runs the command. Named binds make
// the field order irrelevant.
func (e *Executor) ExecuteWithEntity(
	ctx context.Context,
	poolName string,
	kind CommandKind,
	command string,
	entity interface{},
	outputs []OutParam,
) (*Result, error) {
	return e.run(ctx, poolName, kind, command, entity, outputs)
}

func (e *Executor) run(
	ctx context.Context,
	poolName string,
	kind CommandKind,
	command string,
	arg interface{},
	outputs []OutParam,
) (*Result, error) {
	pool, err := e.registry.GetPool(ctx, poolName, nil)
	if err != nil {
		return nil, e.commandError(poolName, kind, command, err)
	}

	conn, err := pool.Connection(ctx)
	if err != nil {
		return nil, e.commandError(poolName, kind, command, err)
	}

	result, err := runStatement(ctx, conn, kind, command, arg, outputs)
	err = liberr.Join(err, conn.Close())
	if err != nil {
		return nil, e.commandError(poolName, kind, command, err)
	}
	return result, nil
}

func (e *Executor) commandError(poolName string, kind CommandKind, command string, cause error) error {
	cmdErr := &CommandError{
		Pool:    poolName,
		Command: command,
		Err:     cause,
	}
	e.logger.WithFields(logging.Fields{
		"pool":    poolName,
		"kind":    kind.String(),
		"command": command,
	}).Error(cause, "command failed")
	return cmdErr
}

// runStatement binds and executes one statement against any client: a
// dedicated connection or a transaction. Shared with the coordinator.
func runStatement(
	ctx context.Context,
	client Client,
	kind CommandKind,
	command string,
	arg interface{},
	outputs []OutParam,
) (*Result, error) {
	query, args, err := bindNamed(command, arg)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindQuery:
		return queryStatement(ctx, client, query, args, outputs)
	case KindExecute:
		if len(outputs) > 0 {
			return nil, errors.New("output params require a row-returning query")
		}
		return execStatement(ctx, client, query, args)
	}
	return nil, errors.Errorf("unknown command kind %d", kind)
}

func bindNamed(command string, arg interface{}) (string, []interface{}, error) {
	if arg == nil {
		return command, nil, nil
	}
	query, args, err := sqlx.Named(command, arg)
	return query, args, errors.WithStack(err)
}

func queryStatement(
	ctx context.Context,
	client Client,
	query string,
	args []interface{},
	outputs []OutParam,
) (*Result, error) {
	rows, err := client.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := &Result{}
	for rows.Next() {
		row := make(map[string]interface{})
		if scanErr := rows.MapScan(row); scanErr != nil {
			return nil, errors.WithStack(scanErr)
		}
		// drivers hand text columns back as raw bytes
		for key, value := range row {
			if raw, ok := value.([]byte); ok {
				row[key] = string(raw)
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	for _, output := range outputs {
		if len(result.Rows) == 0 {
			return nil, errors.Errorf("no row to scan into output param %q", output.Name)
		}
		value, ok := result.Rows[0][output.Name]
		if !ok {
			return nil, errors.Errorf("output param %q not present in result", output.Name)
		}
		if err = assignOut(output.Dest, value); err != nil {
			return nil, errors.Wrapf(err, "output param %q", output.Name)
		}
	}

	return result, nil
}

func execStatement(ctx context.Context, client Client, query string, args []interface{}) (*Result, error) {
	res, err := client.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &Result{}
	result.RowsAffected, err = res.RowsAffected()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// not every driver reports insert ids; zero means unsupported
	if id, idErr := res.LastInsertId(); idErr == nil {
		result.LastInsertID = id
	}
	return result, nil
}

func assignOut(dest, value interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return errors.New("destination must be a non-nil pointer")
	}

	ev := dv.Elem()
	if value == nil {
		ev.Set(reflect.Zero(ev.Type()))
		return nil
	}

	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(ev.Type()):
		ev.Set(vv)
	case vv.Type().ConvertibleTo(ev.Type()):
		ev.Set(vv.Convert(ev.Type()))
	default:
		return errors.Errorf("cannot assign %T to %s", value, ev.Type())
	}
	return nil
}
