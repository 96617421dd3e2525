package newrows

import (
	"context"
	"errors"
	"fmt"
)

// Schema 表结构定义
type Schema struct {
	Name        string
	Columns     []string
	ColumnTypes map[string]string // 仅建表时使用，值原样写入 DDL
	PrimaryKey  []string
}

// NewSchema 创建 Schema
func NewSchema(name string, columns ...string) *Schema {
	return &Schema{
		Name:    name,
		Columns: columns,
	}
}

// WithColumnTypes 设置列类型
func (s *Schema) WithColumnTypes(types map[string]string) *Schema {
	s.ColumnTypes = types
	return s
}

// WithPrimaryKey 设置主键
func (s *Schema) WithPrimaryKey(columns ...string) *Schema {
	s.PrimaryKey = columns
	return s
}

// Validate 校验 Schema
func (s *Schema) Validate() error {
	if s.Name == "" {
		return configErrorf("table", "table name is empty")
	}
	if len(s.Columns) == 0 {
		return configErrorf("columns", "no columns defined in schema %s", s.Name)
	}
	if len(s.PrimaryKey) > 0 {
		if err := KeySpec(s.PrimaryKey).Validate(s.Columns); err != nil {
			return err
		}
	}
	return nil
}

// CompositeKeySchema 测试夹具：A,B,C,D 四个整数列，主键 (A,B)
func CompositeKeySchema(table string) *Schema {
	return NewSchema(table, "A", "B", "C", "D").
		WithColumnTypes(map[string]string{
			"A": "INTEGER",
			"B": "INTEGER",
			"C": "INTEGER",
			"D": "INTEGER",
		}).
		WithPrimaryKey("A", "B")
}

// SetupTable 删除并重新创建目标表
func SetupTable(ctx context.Context, pool ConnectionPool, driver SQLDriver, schema *Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	create, err := driver.GenerateCreateSQL(schema)
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	drop := driver.GenerateDropSQL(schema.Name)
	if _, err := conn.ExecContext(ctx, drop); err != nil {
		return &QueryError{Query: drop, Err: err}
	}
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return &QueryError{Query: create, Err: err}
	}
	return nil
}

// DropTable 删除表（不存在时忽略）
func DropTable(ctx context.Context, pool ConnectionPool, driver SQLDriver, table string) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	drop := driver.GenerateDropSQL(table)
	if _, err := conn.ExecContext(ctx, drop); err != nil {
		return &QueryError{Query: drop, Err: err}
	}
	return nil
}

// CountRows 返回表的行数
func CountRows(ctx context.Context, pool ConnectionPool, driver SQLDriver, table string) (int64, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", driver.QuoteIdentifier(table))
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return 0, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	var n int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, &QueryError{Query: query, Err: err}
		}
		return 0, &QueryError{Query: query, Err: errors.New("no rows returned")}
	}
	if err := rows.Scan(&n); err != nil {
		return 0, &QueryError{Query: query, Err: err}
	}
	return n, nil
}
