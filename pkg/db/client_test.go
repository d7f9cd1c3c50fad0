package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type widget struct {
	ID  int
	SKU string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:dbpkg_"+uuid.NewString()+"?mode=memory&cache=shared"),
		&gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return conn
}

func widgets(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&widget{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnNil(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn, time.Second)

	err := client.WithTx(context.Background(), func(_ context.Context, tx *gorm.DB) error {
		return tx.Create(&widget{SKU: "a"}).Error
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, widgets(t, conn))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn, time.Second)
	sentinel := errors.New("stop")

	err := client.WithTx(context.Background(), func(_ context.Context, tx *gorm.DB) error {
		require.NoError(t, tx.Create(&widget{SKU: "b"}).Error)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Zero(t, widgets(t, conn))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn, time.Second)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(_ context.Context, tx *gorm.DB) error {
			if err := tx.Create(&widget{SKU: "c"}).Error; err != nil {
				return err
			}
			panic("mid-transaction")
		})
	})
	require.Zero(t, widgets(t, conn))
}

func TestWithTxDeadlineSurfacesAsTimeout(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn, 20*time.Millisecond)

	err := client.WithTx(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&widget{SKU: "d"}).Error; err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTimeout), "got %v", err)
	require.Zero(t, widgets(t, conn))
}

func TestWithTxHandsBoundedContextToFn(t *testing.T) {
	client := NewFromConn(openSQLite(t), 50*time.Millisecond)

	var (
		hadDeadline bool
		slowCallErr error
	)
	started := time.Now()
	err := client.WithTx(context.Background(), func(ctx context.Context, tx *gorm.DB) error {
		_, hadDeadline = ctx.Deadline()
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			slowCallErr = ctx.Err()
		}
		return slowCallErr
	})
	require.True(t, hadDeadline)
	require.ErrorIs(t, slowCallErr, context.DeadlineExceeded)
	require.Less(t, time.Since(started), time.Second)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTimeout), "got %v", err)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, conn.Create(&widget{SKU: "dup"}).Error)

	err := conn.Create(&widget{SKU: "dup"}).Error
	require.True(t, IsUniqueViolation(err, ""))
	require.False(t, IsUniqueViolation(errors.New("connection refused"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestPingAndDefaultTimeout(t *testing.T) {
	client := NewFromConn(openSQLite(t), 0)
	require.Equal(t, defaultTxTimeout, client.txTimeout)
	require.NoError(t, client.Ping(context.Background()))
}
