package session

import (
	"context"
	"fmt"

	"github.com/lychee-technology/duckpg/internal/dialect"
)

// Transaction runs body under BEGIN...COMMIT, rolling back on any
// error body returns. A call made while s is already inside a
// transaction is a nested call: it is served by a SAVEPOINT
// when the dialect's capability tri-state allows it, probed on first
// use, and rejected outright once the tri-state has settled on "no".
func (s *Session) Transaction(ctx context.Context, body func(*Session) error) error {
	if s.txn != nil {
		return s.nestedTransaction(ctx, body)
	}
	return s.topLevelTransaction(ctx, body)
}

func (s *Session) topLevelTransaction(ctx context.Context, body func(*Session) error) error {
	tx, err := s.rawDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin transaction: %w", err)
	}

	txSession := &Session{
		db:         tx,
		stmts:      s.stmts,
		dialect:    s.dialect,
		translator: s.translator,
		logger:     s.logger,
		txn:        &txState{tx: tx},
	}

	if err := body(txSession); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("session: commit transaction: %w", err)
	}
	return nil
}

// nestedTransaction branches on the dialect's savepoint-capability
// tri-state: serve through a savepoint, probe on first use, or reject
// outright.
func (s *Session) nestedTransaction(ctx context.Context, body func(*Session) error) error {
	state := s.txn
	if state.rollbackOnly {
		return ErrSessionDirty
	}

	capability := s.dialect.Savepoints()
	if capability == dialect.CapabilityNo {
		return ErrNestedTransactionUnsupported
	}

	state.savepointNum++
	name := fmt.Sprintf("sp_%d", state.savepointNum)

	if _, err := state.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		if capability == dialect.CapabilityUnknown {
			s.dialect.SetSavepoints(dialect.CapabilityNo)
		}
		// Outer-transaction state is conservatively marked for
		// rollback: the engine rejected a savepoint mid-transaction,
		// so its internal state is no longer trustworthy.
		state.rollbackOnly = true
		return ErrNestedTransactionUnsupported
	}
	if capability == dialect.CapabilityUnknown {
		s.dialect.SetSavepoints(dialect.CapabilityYes)
	}

	if err := body(s); err != nil {
		if _, rbErr := state.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint also failed: %v)", err, rbErr)
		}
		return err
	}

	if _, err := state.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("session: release savepoint: %w", err)
	}
	return nil
}
