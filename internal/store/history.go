package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cloudmirror/cloudmirror/internal/logger"
	"github.com/cloudmirror/cloudmirror/models"
)

// HistorySince returns all history transactions recorded after the given
// cursor token, oldest first. An empty token means "from the beginning".
// Returns ErrCursorExpired when the cursor points below the retained
// history floor, i.e. the referenced transactions were already pruned; the
// caller must then reset the cursor and resync from scratch.
func (s *Store) HistorySince(ctx context.Context, token string) ([]models.Transaction, error) {
	log := logger.FromContext(ctx)

	after, err := parseCursor(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCursorExpired, token)
	}

	floor, err := s.historyFloor(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" && after < floor {
		return nil, ErrCursorExpired
	}

	rows, err := s.db.QueryContext(ctx, selectHistoryTxns, after)
	if err != nil {
		log.Err(err).Str("func", "Store.HistorySince").Msg("failed to query history")
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var (
		txns    []models.Transaction
		current *models.Transaction
	)
	for rows.Next() {
		var (
			txnID       int64
			contextName string
			kind        string
			entity      string
			objectID    int64
			changedJSON string
			tombstone   sql.NullString
		)
		if err = rows.Scan(&txnID, &contextName, &kind, &entity, &objectID, &changedJSON, &tombstone); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		token := strconv.FormatInt(txnID, 10)
		if current == nil || current.Token != token {
			txns = append(txns, models.Transaction{Token: token, ContextName: contextName})
			current = &txns[len(txns)-1]
		}

		change := models.Change{
			Kind:     models.ChangeKind(kind),
			Entity:   entity,
			ObjectID: objectID,
		}
		if err = json.Unmarshal([]byte(changedJSON), &change.ChangedFields); err != nil {
			return nil, fmt.Errorf("decode history changed fields: %w", err)
		}
		if tombstone.Valid && tombstone.String != "" {
			var ts models.Tombstone
			if err = json.Unmarshal([]byte(tombstone.String), &ts); err != nil {
				return nil, fmt.Errorf("decode history tombstone: %w", err)
			}
			change.Tombstone = &ts
		}
		current.Changes = append(current.Changes, change)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", rowsErr)
	}

	return txns, nil
}

// DeleteHistory prunes all history transactions up to and including the
// given cursor token and advances the history floor accordingly.
func (s *Store) DeleteHistory(ctx context.Context, before string) error {
	id, err := parseCursor(before)
	if err != nil || id == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history prune: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, deleteHistoryRows, id); err != nil {
		return fmt.Errorf("prune history rows: %w", err)
	}
	if _, err = tx.ExecContext(ctx, deleteHistoryTxns, id); err != nil {
		return fmt.Errorf("prune history transactions: %w", err)
	}

	floor, err := s.historyFloorTx(ctx, tx)
	if err != nil {
		return err
	}
	if id > floor {
		if _, err = tx.ExecContext(ctx, upsertValue, historyFloorKey, strconv.FormatInt(id, 10)); err != nil {
			return fmt.Errorf("advance history floor: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Store) historyFloor(ctx context.Context) (int64, error) {
	value, err := s.GetValue(ctx, historyFloorKey)
	if errors.Is(err, ErrValueNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseCursor(value)
}

func (s *Store) historyFloorTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var value string
	err := tx.QueryRowContext(ctx, selectValue, historyFloorKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read history floor: %w", err)
	}
	return parseCursor(value)
}

func parseCursor(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	return strconv.ParseInt(token, 10, 64)
}
