package mysql

import (
	"context"

	"github.com/google/uuid"

	"gitea.xscloud.ru/xscloud/dbpool/pkg/application/logging"
)

// TransactionOp is one command inside a coordinated transaction. It
// inherits the transaction's pool.
type TransactionOp struct {
	Kind    CommandKind
	Command string
	Inputs  []Param
	Outputs []OutParam
}

// Coordinator sequences multi-command transactions: one pinned
// connection, strictly sequential operations, commit only when every
// operation succeeded.
type Coordinator struct {
	registry *Registry
	logger   logging.Logger
}

func NewCoordinator(registry *Registry, logger logging.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		logger:   logger,
	}
}

// ExecuteTransaction runs the operations in order inside one
// transaction. The first operation failure triggers a rollback; a failed
// rollback is logged but never masks the operation error. A failed
// commit propagates as-is, with no rollback attempt, because the
// transaction's terminal state is ambiguous and must surface.
func (c *Coordinator) ExecuteTransaction(ctx context.Context, poolName string, ops []TransactionOp) ([]*Result, error) {
	pool, err := c.registry.GetPool(ctx, poolName, nil)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Connection(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			c.logger.WithField("pool", poolName).Error(closeErr, "failed to release transaction connection")
		}
	}()

	logger := c.logger.WithFields(logging.Fields{
		"pool":           poolName,
		"transaction_id": uuid.NewString(),
	})

	tx, err := conn.BeginTransaction(ctx, nil)
	if err != nil {
		logger.Error(err, "failed to begin transaction")
		return nil, &TransactionError{Pool: poolName, Stage: StageBegin, Op: -1, Err: err}
	}

	results := make([]*Result, 0, len(ops))
	for i, op := range ops {
		result, opErr := runOp(ctx, tx, op)
		if opErr != nil {
			logger.WithField("operation", i).Error(opErr, "transaction operation failed, rolling back")
			if rbErr := tx.Rollback(); rbErr != nil {
				// the operation error stays primary; a failed rollback
				// leaves state that may need manual reconciliation
				logger.Error(rbErr, "transaction rollback failed")
			}
			return nil, &TransactionError{Pool: poolName, Stage: StageOperation, Op: i, Err: opErr}
		}
		results = append(results, result)
	}

	if err = tx.Commit(); err != nil {
		logger.Error(err, "failed to commit transaction")
		return nil, &TransactionError{Pool: poolName, Stage: StageCommit, Op: -1, Err: err}
	}

	logger.Debug("transaction committed")
	return results, nil
}

func runOp(ctx context.Context, tx Transaction, op TransactionOp) (*Result, error) {
	argMap, err := bindParams(op.Inputs)
	if err != nil {
		return nil, err
	}
	return runStatement(ctx, tx, op.Kind, op.Command, argMap, op.Outputs)
}
