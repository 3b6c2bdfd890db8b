package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/blazewallet/schedvault/internal/apierror"
	"github.com/blazewallet/schedvault/model"

	_ "github.com/lib/pq"
)

const scheduledTxColumns = `scheduled_tx_id, user_id, chain, from_address, to_address, amount, token_address, token_symbol, memo, scheduled_for, expires_at, max_wait_hours, priority, status, encrypted_auth, retry_count, error_message, executed_at, transaction_hash, claimed_at, created_at`

// priorityRank orders worker claims: instant first, low last. Ordering
// only; eligibility is decided by the time-window predicates.
const priorityRank = `CASE priority WHEN 'instant' THEN 3 WHEN 'high' THEN 2 WHEN 'standard' THEN 1 ELSE 0 END`

func (d Datasource) CreateScheduledTransaction(ctx context.Context, txn *model.ScheduledTransaction) (*model.ScheduledTransaction, error) {
	ctx, span := otel.Tracer("scheduledtx.database").Start(ctx, "Saving scheduled transaction to db")
	defer span.End()

	encryptedAuthJSON, err := json.Marshal(txn.EncryptedAuth)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal encrypted authorization", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO scheduled_transactions(scheduled_tx_id,user_id,chain,from_address,to_address,amount,token_address,token_symbol,memo,scheduled_for,expires_at,max_wait_hours,priority,status,encrypted_auth,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		txn.ScheduledTxID, txn.UserID, txn.Chain, txn.FromAddress, txn.ToAddress, txn.Amount, txn.TokenAddress, txn.TokenSymbol, txn.Memo, txn.ScheduledFor, txn.ExpiresAt, txn.MaxWaitHours, txn.Priority, txn.Status, encryptedAuthJSON, txn.CreatedAt,
	)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record scheduled transaction", err)
	}

	return txn, nil
}

func (d Datasource) GetScheduledTransaction(ctx context.Context, id string) (*model.ScheduledTransaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+scheduledTxColumns+`
		FROM scheduled_transactions
		WHERE scheduled_tx_id = $1
	`, id)

	txn, err := scanScheduledTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Scheduled transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve scheduled transaction", err)
	}
	return txn, nil
}

func (d Datasource) GetScheduledTransactionsByUser(ctx context.Context, userID string, status model.Status) ([]model.ScheduledTransaction, error) {
	query := `
		SELECT ` + scheduledTxColumns + `
		FROM scheduled_transactions
		WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY scheduled_for ASC`

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve scheduled transactions", err)
	}
	defer rows.Close()

	transactions := []model.ScheduledTransaction{}
	for rows.Next() {
		txn, err := scanScheduledTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan scheduled transaction", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate scheduled transactions", err)
	}

	return transactions, nil
}

// CancelScheduledTransaction cancels a pending record owned by userID. The
// bundle is nulled in the same statement. A cancel racing a worker claim is
// resolved here: whichever conditional UPDATE commits first wins, and the
// loser sees zero rows.
func (d Datasource) CancelScheduledTransaction(ctx context.Context, id string, userID string) (*model.ScheduledTransaction, error) {
	ctx, span := otel.Tracer("scheduledtx.database").Start(ctx, "Cancelling scheduled transaction")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE scheduled_transactions
		SET status = 'cancelled', encrypted_auth = NULL
		WHERE scheduled_tx_id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING `+scheduledTxColumns+`
	`, id, userID)

	txn, err := scanScheduledTransaction(row)
	if err == nil {
		return txn, nil
	}
	if err != sql.ErrNoRows {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel scheduled transaction", err)
	}

	// Nothing updated: distinguish not-found, already-cancelled
	// (idempotent success) and lost-the-claim-race (conflict).
	current, getErr := d.GetScheduledTransaction(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.UserID != userID {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Scheduled transaction with ID '%s' not found", id), nil)
	}
	if current.Status == model.StatusCancelled {
		return current, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Scheduled transaction is already %s and can no longer be cancelled", current.Status), nil)
}

// ClaimDueScheduledTransactions atomically flips up to limit eligible rows
// to executing and returns them, bundles included. Eligible rows are
// pending inside their execution window, plus executing rows whose claim
// is older than claimGrace (a worker died mid-record). Stale claims are
// reclaimed even past expires_at so the worker can fail them and purge
// their bundles; only fresh pending rows are gated by the window. FOR
// UPDATE SKIP LOCKED makes concurrent worker runs race-safe: a row is
// claimed by exactly one of them and losers simply do not see it.
func (d Datasource) ClaimDueScheduledTransactions(ctx context.Context, limit int, claimGrace time.Duration) ([]*model.ScheduledTransaction, error) {
	ctx, span := otel.Tracer("scheduledtx.database").Start(ctx, "Claiming due scheduled transactions")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		UPDATE scheduled_transactions
		SET status = 'executing', claimed_at = NOW()
		WHERE scheduled_tx_id IN (
			SELECT scheduled_tx_id
			FROM scheduled_transactions
			WHERE (status = 'pending' AND scheduled_for <= NOW() AND expires_at > NOW())
			   OR (status = 'executing' AND claimed_at < NOW() - ($2 * INTERVAL '1 second'))
			ORDER BY `+priorityRank+` DESC, scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+scheduledTxColumns+`
	`, limit, claimGrace.Seconds())
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim due scheduled transactions", err)
	}
	defer rows.Close()

	claimed := []*model.ScheduledTransaction{}
	for rows.Next() {
		txn, err := scanScheduledTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan claimed transaction", err)
		}
		claimed = append(claimed, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate claimed transactions", err)
	}

	return claimed, nil
}

// FinalizeScheduledTransaction moves a claimed record to its terminal
// status. The bundle is nulled unconditionally in the same statement; there
// is no code path that finalizes a record while leaving the authorization
// material intact.
func (d Datasource) FinalizeScheduledTransaction(ctx context.Context, id string, status model.Status, transactionHash string, errorMessage string) error {
	ctx, span := otel.Tracer("scheduledtx.database").Start(ctx, "Finalizing scheduled transaction")
	defer span.End()

	if status != model.StatusCompleted && status != model.StatusFailed {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("Cannot finalize to status '%s'", status), nil)
	}

	var result sql.Result
	var err error
	if status == model.StatusCompleted {
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE scheduled_transactions
			SET status = $2, encrypted_auth = NULL, executed_at = NOW(), transaction_hash = $3, error_message = NULL
			WHERE scheduled_tx_id = $1 AND status = 'executing'
		`, id, status, transactionHash)
	} else {
		result, err = d.Conn.ExecContext(ctx, `
			UPDATE scheduled_transactions
			SET status = $2, encrypted_auth = NULL, error_message = $3
			WHERE scheduled_tx_id = $1 AND status = 'executing'
		`, id, status, errorMessage)
	}
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize scheduled transaction", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize scheduled transaction", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Scheduled transaction '%s' is not executing", id), nil)
	}
	return nil
}

func (d Datasource) UpdateScheduledTransactionRetry(ctx context.Context, id string, retryCount int, errorMessage string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE scheduled_transactions
		SET retry_count = $2, error_message = $3
		WHERE scheduled_tx_id = $1 AND status = 'executing'
	`, id, retryCount, errorMessage)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update retry count", err)
	}
	return nil
}

// ExpireDueScheduledTransactions is the sweep: every pending record past
// its hard cutoff becomes expired and loses its bundle, whether or not a
// worker ever looked at it.
func (d Datasource) ExpireDueScheduledTransactions(ctx context.Context) (int64, error) {
	ctx, span := otel.Tracer("scheduledtx.database").Start(ctx, "Sweeping expired scheduled transactions")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE scheduled_transactions
		SET status = 'expired', encrypted_auth = NULL
		WHERE status = 'pending' AND expires_at <= NOW()
	`)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sweep expired scheduled transactions", err)
	}
	return result.RowsAffected()
}

func (d Datasource) ExpireScheduledTransaction(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE scheduled_transactions
		SET status = 'expired', encrypted_auth = NULL
		WHERE scheduled_tx_id = $1 AND status = 'pending' AND expires_at <= NOW()
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to expire scheduled transaction", err)
	}
	return nil
}

func (d Datasource) RecordDecryptAttempt(ctx context.Context, attempt *model.DecryptAttempt) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO scheduled_tx_decrypt_audit(scheduled_tx_id, success, reason, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, attempt.ScheduledTxID, attempt.Success, attempt.Reason, attempt.DurationMs)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record decrypt attempt", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScheduledTransaction(row rowScanner) (*model.ScheduledTransaction, error) {
	txn := &model.ScheduledTransaction{}
	var (
		encryptedAuthJSON []byte
		tokenAddress      sql.NullString
		tokenSymbol       sql.NullString
		memo              sql.NullString
		errorMessage      sql.NullString
		transactionHash   sql.NullString
		executedAt        sql.NullTime
		claimedAt         sql.NullTime
	)

	err := row.Scan(
		&txn.ScheduledTxID, &txn.UserID, &txn.Chain, &txn.FromAddress, &txn.ToAddress, &txn.Amount,
		&tokenAddress, &tokenSymbol, &memo, &txn.ScheduledFor, &txn.ExpiresAt, &txn.MaxWaitHours,
		&txn.Priority, &txn.Status, &encryptedAuthJSON, &txn.RetryCount, &errorMessage,
		&executedAt, &transactionHash, &claimedAt, &txn.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.TokenAddress = tokenAddress.String
	txn.TokenSymbol = tokenSymbol.String
	txn.Memo = memo.String
	txn.ErrorMessage = errorMessage.String
	txn.TransactionHash = transactionHash.String
	if executedAt.Valid {
		txn.ExecutedAt = &executedAt.Time
	}
	if claimedAt.Valid {
		txn.ClaimedAt = &claimedAt.Time
	}

	if len(encryptedAuthJSON) > 0 {
		var bundle model.EncryptedAuthBundle
		if err := json.Unmarshal(encryptedAuthJSON, &bundle); err != nil {
			return nil, err
		}
		txn.EncryptedAuth = &bundle
	}

	return txn, nil
}
