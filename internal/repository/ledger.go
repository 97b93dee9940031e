package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"wealthledger/internal/authgate"
	"wealthledger/internal/loan"
	"wealthledger/internal/model"
	"wealthledger/internal/settlement"
)

//go:embed deposit.lua
var depositLuaScript string

//go:embed withdraw.lua
var withdrawLuaScript string

// LedgerRepo is the authoritative settlement store. Redis holds the hot
// balance and executes mutations atomically via Lua; Postgres is the
// system of record, warmed into the cache on miss and kept in sync by
// the transaction worker consuming published events.
type LedgerRepo struct {
	redisClient *redis.Client
	dbPool      *pgxpool.Pool
	bus         MessageBus
}

var _ settlement.Backend = (*LedgerRepo)(nil)

func NewLedgerRepo(rdb *redis.Client, db *pgxpool.Pool, bus MessageBus) *LedgerRepo {
	return &LedgerRepo{
		redisClient: rdb,
		dbPool:      db,
		bus:         bus,
	}
}

var errCacheMiss = errors.New("balance not found in cache")

// Settle executes one descriptor. Domain rejections come back as rejected
// confirmations with a nil error; a non-nil error means the engine itself
// failed and the bus handler reports a connection-class rejection.
func (r *LedgerRepo) Settle(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	switch desc.Kind {
	case model.OpDeposit:
		return r.applyBalanceOp(ctx, desc, depositLuaScript)
	case model.OpWithdraw:
		return r.applyBalanceOp(ctx, desc, withdrawLuaScript)
	case model.OpChangeCredential:
		return r.changeCredential(ctx, desc)
	case model.OpRequestLoan:
		return r.requestLoan(ctx, desc)
	default:
		return nil, fmt.Errorf("unknown operation kind %q", desc.Kind)
	}
}

// Balance returns the authoritative balance, creating the account on
// first contact.
func (r *LedgerRepo) Balance(ctx context.Context, owner string) (int64, error) {
	bal, err := r.redisClient.Get(ctx, balanceKey(owner)).Int64()
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis get balance: %w", err)
	}
	if err := r.warmUpCache(ctx, owner); err != nil {
		return 0, err
	}
	bal, err = r.redisClient.Get(ctx, balanceKey(owner)).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis get balance after warmup: %w", err)
	}
	return bal, nil
}

// applyBalanceOp runs the Lua script; on a cold cache it warms the
// balance from Postgres and retries once.
func (r *LedgerRepo) applyBalanceOp(ctx context.Context, desc model.OperationDescriptor, script string) (*model.Confirmation, error) {
	if desc.Amount <= 0 {
		return reject(desc, &model.ValidationError{Field: "amount", Reason: "must be positive"}), nil
	}

	conf, err := r.executeLua(ctx, desc, script)
	if errors.Is(err, errCacheMiss) {
		slog.Info("cold start, warming balance from postgres", "owner", desc.Owner)
		if err := r.warmUpCache(ctx, desc.Owner); err != nil {
			return nil, err
		}
		conf, err = r.executeLua(ctx, desc, script)
	}
	if err != nil {
		return nil, err
	}
	if conf.Settled() {
		r.publishTransaction(desc, conf.Balance)
	}
	return conf, nil
}

func (r *LedgerRepo) executeLua(ctx context.Context, desc model.OperationDescriptor, script string) (*model.Confirmation, error) {
	keys := []string{balanceKey(desc.Owner), idemKey(desc.ID)}
	result, err := r.redisClient.Eval(ctx, script, keys, desc.Amount).Result()
	if err != nil {
		return nil, fmt.Errorf("error executing lua script: %w", err)
	}

	resArray, ok := result.([]interface{})
	if !ok || len(resArray) < 2 {
		return nil, errors.New("unexpected response format from redis")
	}
	statusCode, ok := resArray[0].(int64)
	if !ok {
		return nil, errors.New("unexpected status type from redis")
	}

	switch statusCode {
	case 1:
		balance, _ := resArray[1].(int64)
		return settled(desc, balance), nil
	case 0:
		return reject(desc, model.ErrAlreadyProcessed), nil
	case -1:
		return nil, errCacheMiss
	case -2:
		return reject(desc, model.ErrInsufficientFunds), nil
	case -3:
		return reject(desc, model.ErrArithmeticOverflow), nil
	default:
		return nil, fmt.Errorf("unknown status from lua: %d", statusCode)
	}
}

// warmUpCache fetches the balance from Postgres and puts it into Redis,
// creating the account with a zero balance and the default credential on
// first contact. No TTL: Redis is the primary cache.
func (r *LedgerRepo) warmUpCache(ctx context.Context, owner string) error {
	var currentBalance int64
	query := `SELECT amount FROM balances WHERE owner = $1`
	err := r.dbPool.QueryRow(ctx, query, owner).Scan(&currentBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := r.createAccount(ctx, owner); err != nil {
			return err
		}
		currentBalance = 0
	} else if err != nil {
		return fmt.Errorf("database query error: %w", err)
	}

	if err := r.redisClient.Set(ctx, balanceKey(owner), currentBalance, 0).Err(); err != nil {
		return fmt.Errorf("failed to save balance to redis: %w", err)
	}
	return nil
}

// createAccount provisions the implicit account: zero balance and the
// system default secret, stored hashed.
func (r *LedgerRepo) createAccount(ctx context.Context, owner string) error {
	defaultHash, err := authgate.HashSecret(authgate.DefaultSecret)
	if err != nil {
		return err
	}

	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create account: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO balances (owner, amount) VALUES ($1, 0) ON CONFLICT (owner) DO NOTHING`,
		owner); err != nil {
		return fmt.Errorf("insert balance row: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO credentials (owner, secret_hash) VALUES ($1, $2) ON CONFLICT (owner) DO NOTHING`,
		owner, defaultHash); err != nil {
		return fmt.Errorf("insert credential row: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create account: %w", err)
	}

	slog.Info("account created", "owner", owner)
	return nil
}

func (r *LedgerRepo) changeCredential(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	if err := authgate.ValidateNewSecret(desc.NewSecret); err != nil {
		return reject(desc, err), nil
	}

	var storedHash string
	err := r.dbPool.QueryRow(ctx,
		`SELECT secret_hash FROM credentials WHERE owner = $1`, desc.Owner).Scan(&storedHash)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := r.createAccount(ctx, desc.Owner); err != nil {
			return nil, err
		}
		err = r.dbPool.QueryRow(ctx,
			`SELECT secret_hash FROM credentials WHERE owner = $1`, desc.Owner).Scan(&storedHash)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err := authgate.VerifySecret(storedHash, desc.CurrentSecret); err != nil {
		return reject(desc, err), nil
	}

	newHash, err := authgate.HashSecret(desc.NewSecret)
	if err != nil {
		return reject(desc, err), nil
	}
	if _, err := r.dbPool.Exec(ctx,
		`UPDATE credentials SET secret_hash = $2, updated_at = now() WHERE owner = $1`,
		desc.Owner, newHash); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	slog.Info("credential changed", "owner", desc.Owner)
	return settled(desc, 0), nil
}

func (r *LedgerRepo) requestLoan(ctx context.Context, desc model.OperationDescriptor) (*model.Confirmation, error) {
	if err := loan.Validate(desc.Amount, desc.DurationMonths); err != nil {
		return reject(desc, err), nil
	}

	if _, err := r.dbPool.Exec(ctx,
		`INSERT INTO loans (owner, amount, duration_months, status, operation_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (operation_id) DO NOTHING`,
		desc.Owner, desc.Amount, desc.DurationMonths, string(loan.StatusSubmitted), desc.ID); err != nil {
		return nil, fmt.Errorf("insert loan request: %w", err)
	}

	conf := settled(desc, 0)
	conf.LoanStatus = string(loan.StatusSubmitted)
	slog.Info("loan request submitted", "owner", desc.Owner, "amount", desc.Amount, "duration_months", desc.DurationMonths)
	return conf, nil
}

// RecordTransaction appends a settled balance mutation to the history
// table and syncs the authoritative balance. The insert is idempotent on
// the operation ID; the balance update only runs when the insert landed.
func (r *LedgerRepo) RecordTransaction(ctx context.Context, event model.TransactionEvent) error {
	tx, err := r.dbPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO transactions (owner, kind, amount, operation_id, balance_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (operation_id) DO NOTHING`,
		event.Owner, string(event.Kind), event.Amount, event.OperationID, event.BalanceAfter, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if tag.RowsAffected() > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE balances SET amount = $2, updated_at = now() WHERE owner = $1`,
			event.Owner, event.BalanceAfter); err != nil {
			return fmt.Errorf("sync balance: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *LedgerRepo) publishTransaction(desc model.OperationDescriptor, balanceAfter int64) {
	event := model.TransactionEvent{
		Owner:        desc.Owner,
		Kind:         desc.Kind,
		Amount:       desc.Amount,
		OperationID:  desc.ID,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now(),
	}
	data, _ := json.Marshal(event)
	if err := r.bus.Publish("transactions.created", data); err != nil {
		slog.Error("failed to publish transaction event",
			"owner", desc.Owner, "operation_id", desc.ID, "error", err)
	}
}

func settled(desc model.OperationDescriptor, balance int64) *model.Confirmation {
	return &model.Confirmation{
		OperationID: desc.ID,
		Status:      model.ConfirmationSettled,
		Balance:     balance,
	}
}

func reject(desc model.OperationDescriptor, err error) *model.Confirmation {
	conf := &model.Confirmation{
		OperationID: desc.ID,
		Status:      model.ConfirmationRejected,
		Code:        model.CodeOf(err),
		Message:     err.Error(),
	}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		conf.Field = verr.Field
		conf.Message = verr.Reason
	}
	return conf
}

func balanceKey(owner string) string { return fmt.Sprintf("balance:%s", owner) }
func idemKey(id string) string       { return fmt.Sprintf("idem:%s", id) }
