package sqlite

import (
	"context"
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/rushairer/newrows"
)

// DriverName database/sql 注册名
const DriverName = "sqlite3"

// NewDriver 创建SQLite方言
// SQLite 没有 TRUNCATE，Replace 模式使用 DELETE FROM
// 标识符用反引号：双引号标识符找不到对应列时会被当作字符串字面量
func NewDriver() *newrows.Dialect {
	d := &newrows.Dialect{
		DriverName:       "sqlite",
		QuoteChar:        "`",
		Placeholder:      newrows.PlaceholderQuestion,
		MaxArgs:          32766,
		ClearTemplate:    "DELETE FROM %s",
		TableExistsQuery: "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		DuplicateKey:     IsDuplicateKey,
	}
	// schema 是附加数据库名（main、temp 或 ATTACH 的别名）
	d.SchemaTableExists = func(schema, table string) (string, []any) {
		return "SELECT COUNT(*) FROM " + d.QuoteIdentifier(schema) + ".sqlite_master WHERE type = 'table' AND name = ?", []any{table}
	}
	return d
}

// DefaultDriver 全局默认SQLite方言实例
var DefaultDriver = NewDriver()

// IsDuplicateKey 主键/唯一约束冲突
func IsDuplicateKey(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Open 打开SQLite连接池
// 多连接并发写入时 dsn 应带上 _busy_timeout，并建议 _journal_mode=WAL&_txlock=immediate
func Open(ctx context.Context, dsn string, poolSize int) (*newrows.SQLPool, error) {
	return newrows.OpenSQLPool(ctx, DriverName, dsn, poolSize)
}
