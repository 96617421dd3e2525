package postgresql

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"github.com/rushairer/newrows"
)

// DriverName database/sql 注册名（lib/pq）
const DriverName = "postgres"

// unique_violation
const uniqueViolation = "23505"

// NewDriver 创建PostgreSQL方言
func NewDriver() *newrows.Dialect {
	return &newrows.Dialect{
		DriverName:       "postgresql",
		QuoteChar:        `"`,
		Placeholder:      newrows.PlaceholderDollar,
		MaxArgs:          65535,
		ClearTemplate:    "TRUNCATE TABLE %s",
		TableExistsQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
		DuplicateKey:     IsDuplicateKey,
	}
}

// DefaultDriver 全局默认PostgreSQL方言实例
var DefaultDriver = NewDriver()

// IsDuplicateKey 唯一约束冲突
func IsDuplicateKey(err error) bool {
	var pe *pq.Error
	return errors.As(err, &pe) && string(pe.Code) == uniqueViolation
}

// Open 打开PostgreSQL连接池
func Open(ctx context.Context, dsn string, poolSize int) (*newrows.SQLPool, error) {
	return newrows.OpenSQLPool(ctx, DriverName, dsn, poolSize)
}
