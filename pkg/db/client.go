// Package db owns the Postgres connection and the unit-of-work helper every
// state change in the marketplace runs through.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const defaultTxTimeout = 30 * time.Second

type Client struct {
	conn      *gorm.DB
	txTimeout time.Duration
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	conn, err := gorm.Open(
		postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}),
		&gorm.Config{
			Logger:                 newQueryLogger(logg, cfg.SlowQuery),
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "database connection established")
	}
	return NewFromConn(conn, cfg.TxTimeout), nil
}

// NewFromConn wraps an already opened connection; tests pass sqlite here.
func NewFromConn(conn *gorm.DB, txTimeout time.Duration) *Client {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &Client{conn: conn, txTimeout: txTimeout}
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn as one unit of work: every statement issued through tx
// commits together or not at all, and errors or panics roll back. The unit is
// bounded by the configured timeout; overrunning it yields CodeTimeout and
// nothing is committed. fn receives the bounded context and must use it for
// any outbound call made inside the unit.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	txCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	err := c.conn.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		if err := fn(txCtx, tx); err != nil {
			return err
		}
		// a unit that ran out of time must not commit even if fn ignored ctx
		return txCtx.Err()
	})
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded)) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, fmt.Sprintf("unit of work exceeded %s", c.txTimeout))
	}
	return err
}
