// Package pgx 基于 jackc/pgx 的 PostgreSQL 方言，分块通过 COPY FROM 写入
package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rushairer/newrows"
	"github.com/rushairer/newrows/drivers/postgresql"
)

// DriverName database/sql 注册名（pgx stdlib）
const DriverName = "pgx"

var (
	_ newrows.SQLDriver = (*Driver)(nil)
	_ newrows.RowCopier = (*Driver)(nil)
)

// Driver 复用 PostgreSQL 方言的语句生成，写入改为 COPY
type Driver struct {
	*newrows.Dialect
}

// NewDriver 创建pgx方言
func NewDriver() *Driver {
	d := postgresql.NewDriver()
	d.DriverName = "pgx"
	d.DuplicateKey = IsDuplicateKey
	return &Driver{Dialect: d}
}

// DefaultDriver 全局默认pgx方言实例
var DefaultDriver = NewDriver()

// CopyRows 用 COPY FROM 写入一个分块
func (d *Driver) CopyRows(ctx context.Context, conn newrows.Conn, schema *newrows.Schema, rows [][]any) error {
	raw, ok := conn.(newrows.RawConn)
	if !ok {
		return errors.New("pgx: connection does not expose the driver connection")
	}
	return raw.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("pgx: unexpected driver connection %T", driverConn)
		}
		n, err := sc.Conn().CopyFrom(ctx, pgx.Identifier(strings.Split(schema.Name, ".")), schema.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return err
		}
		if int(n) != len(rows) {
			return fmt.Errorf("pgx: copied %d of %d rows", n, len(rows))
		}
		return nil
	})
}

// IsDuplicateKey 唯一约束冲突
func IsDuplicateKey(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}

// Open 打开pgx连接池
func Open(ctx context.Context, dsn string, poolSize int) (*newrows.SQLPool, error) {
	return newrows.OpenSQLPool(ctx, DriverName, dsn, poolSize)
}
