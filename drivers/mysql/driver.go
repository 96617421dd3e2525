package mysql

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/rushairer/newrows"
)

// DriverName database/sql 注册名
const DriverName = "mysql"

// ER_DUP_ENTRY
const errDupEntry = 1062

// NewDriver 创建MySQL方言（用于自定义需求）
func NewDriver() *newrows.Dialect {
	return &newrows.Dialect{
		DriverName:       "mysql",
		QuoteChar:        "`",
		Placeholder:      newrows.PlaceholderQuestion,
		MaxArgs:          65535,
		ClearTemplate:    "TRUNCATE TABLE %s",
		TableExistsQuery: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		DuplicateKey:     IsDuplicateKey,
	}
}

// DefaultDriver 全局默认MySQL方言实例
var DefaultDriver = NewDriver()

// IsDuplicateKey 主键/唯一索引冲突
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// Open 打开MySQL连接池
func Open(ctx context.Context, dsn string, poolSize int) (*newrows.SQLPool, error) {
	return newrows.OpenSQLPool(ctx, DriverName, dsn, poolSize)
}
