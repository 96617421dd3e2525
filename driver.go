package newrows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SQLDriver 数据库特定的SQL生成器接口
type SQLDriver interface {
	// Name 驱动名称，用于指标标签
	Name() string
	// QuoteIdentifier 引用表名/列名，支持 schema.table 形式
	QuoteIdentifier(name string) string
	// GenerateInsertSQL 生成多行 INSERT
	GenerateInsertSQL(ctx context.Context, schema *Schema, rows [][]any) (sql string, args []any, err error)
	// GenerateSelectKeysSQL 生成只读取键列的查询
	GenerateSelectKeysSQL(table string, keys KeySpec) (string, error)
	// GenerateTableExistsSQL 生成返回单行计数的表存在性查询
	GenerateTableExistsSQL(table string) (sql string, args []any)
	// GenerateClearSQL 清空表（Replace 模式）
	GenerateClearSQL(table string) string
	GenerateDropSQL(table string) string
	GenerateCreateSQL(schema *Schema) (string, error)
	// GenerateAntiJoinInsertSQL 从暂存表插入目标表中不存在键的行
	GenerateAntiJoinInsertSQL(target, staging string, columns []string, keys KeySpec) (string, error)
	// MaxPlaceholders 单条语句允许的最大参数个数
	MaxPlaceholders() int
	// IsDuplicateKey 判断错误是否为主键/唯一约束冲突
	IsDuplicateKey(err error) bool
}

// RowCopier 可选扩展：驱动提供比 INSERT 更快的整块写入方式
type RowCopier interface {
	CopyRows(ctx context.Context, conn Conn, schema *Schema, rows [][]any) error
}

// PlaceholderStyle 参数占位符风格
type PlaceholderStyle int

const (
	// PlaceholderQuestion ?, ?, ?（MySQL/SQLite）
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar $1, $2, $3（PostgreSQL）
	PlaceholderDollar
)

var _ SQLDriver = (*Dialect)(nil)

// Dialect 通用的 SQLDriver 实现，各数据库通过字段差异化
// drivers/ 下的子包提供预先配置好的实例
type Dialect struct {
	DriverName       string
	QuoteChar        string
	Placeholder      PlaceholderStyle
	MaxArgs          int
	ClearTemplate    string // 例如 "DELETE FROM %s"、"TRUNCATE TABLE %s"
	TableExistsQuery string // 一个参数：表名；返回单行计数
	DuplicateKey     func(error) bool

	// SchemaTableExists 生成 schema.table 限定名的存在性查询
	// 为空时使用 information_schema.tables 的 table_schema/table_name 条件
	SchemaTableExists func(schema, table string) (string, []any)

	placeholders sync.Map // key: (colCount<<32)|batchSize  value: string
}

func (d *Dialect) Name() string { return d.DriverName }

func (d *Dialect) QuoteIdentifier(name string) string {
	q := d.QuoteChar
	if q == "" {
		q = `"`
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

func (d *Dialect) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// GenerateInsertSQL 生成批量插入SQL
func (d *Dialect) GenerateInsertSQL(ctx context.Context, schema *Schema, rows [][]any) (string, []any, error) {
	if len(rows) == 0 {
		return "", nil, nil
	}

	columns := schema.Columns
	if len(columns) == 0 {
		return "", nil, errors.New("no columns defined in schema")
	}
	if limit := d.MaxPlaceholders(); len(rows)*len(columns) > limit {
		return "", nil, fmt.Errorf("insert needs %d placeholders, %s allows %d", len(rows)*len(columns), d.DriverName, limit)
	}

	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		// 忽略超时或取消的请求
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if len(row) != len(columns) {
			return "", nil, fmt.Errorf("row has %d values, schema %s has %d columns", len(row), schema.Name, len(columns))
		}
		args = append(args, row...)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		d.QuoteIdentifier(schema.Name),
		d.quoteAll(columns),
		d.generatePlaceholders(len(columns), len(rows)))
	return sql, args, nil
}

func (d *Dialect) generatePlaceholders(columnCount, batchSize int) string {
	if columnCount <= 0 || batchSize <= 0 {
		return ""
	}
	key := (uint64(columnCount) << 32) | uint64(batchSize)
	if v, ok := d.placeholders.Load(key); ok {
		return v.(string)
	}

	var out string
	switch d.Placeholder {
	case PlaceholderDollar:
		var b strings.Builder
		n := 1
		for i := 0; i < batchSize; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j := 0; j < columnCount; j++ {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
				n++
			}
			b.WriteByte(')')
		}
		out = b.String()
	default:
		singleRow := "(" + strings.Repeat("?, ", columnCount-1) + "?)"
		rows := make([]string, batchSize)
		for i := range rows {
			rows[i] = singleRow
		}
		out = strings.Join(rows, ", ")
	}
	d.placeholders.Store(key, out)
	return out
}

func (d *Dialect) placeholder(n int) string {
	if d.Placeholder == PlaceholderDollar {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (d *Dialect) GenerateSelectKeysSQL(table string, keys KeySpec) (string, error) {
	if len(keys) == 0 {
		return "", configErrorf("keys", "key spec is empty")
	}
	return fmt.Sprintf("SELECT %s FROM %s", d.quoteAll(keys), d.QuoteIdentifier(table)), nil
}

// GenerateTableExistsSQL 限定名按最后一个 "." 拆成 schema 与表名
func (d *Dialect) GenerateTableExistsSQL(table string) (string, []any) {
	if i := strings.LastIndex(table, "."); i > 0 && i < len(table)-1 {
		schema, name := table[:i], table[i+1:]
		if d.SchemaTableExists != nil {
			return d.SchemaTableExists(schema, name)
		}
		return fmt.Sprintf("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = %s AND table_name = %s",
			d.placeholder(1), d.placeholder(2)), []any{schema, name}
	}

	query := d.TableExistsQuery
	if query == "" {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = " + d.placeholder(1)
	}
	return query, []any{table}
}

func (d *Dialect) GenerateClearSQL(table string) string {
	tmpl := d.ClearTemplate
	if tmpl == "" {
		tmpl = "DELETE FROM %s"
	}
	return fmt.Sprintf(tmpl, d.QuoteIdentifier(table))
}

func (d *Dialect) GenerateDropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdentifier(table)
}

func (d *Dialect) GenerateCreateSQL(schema *Schema) (string, error) {
	if err := schema.Validate(); err != nil {
		return "", err
	}
	defs := make([]string, 0, len(schema.Columns)+1)
	for _, col := range schema.Columns {
		typ, ok := schema.ColumnTypes[col]
		if !ok || typ == "" {
			return "", configErrorf("column_types", "no type for column %q", col)
		}
		defs = append(defs, d.QuoteIdentifier(col)+" "+typ)
	}
	if len(schema.PrimaryKey) > 0 {
		pkName := "pk_" + strings.ReplaceAll(schema.Name, ".", "_")
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			d.QuoteIdentifier(pkName), d.quoteAll(schema.PrimaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdentifier(schema.Name), strings.Join(defs, ", ")), nil
}

func (d *Dialect) GenerateAntiJoinInsertSQL(target, staging string, columns []string, keys KeySpec) (string, error) {
	if err := keys.Validate(columns); err != nil {
		return "", err
	}
	sel := make([]string, len(columns))
	for i, c := range columns {
		sel[i] = "s." + d.QuoteIdentifier(c)
	}
	on := make([]string, len(keys))
	for i, k := range keys {
		qk := d.QuoteIdentifier(k)
		on[i] = fmt.Sprintf("s.%s = t.%s", qk, qk)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s s LEFT JOIN %s t ON %s WHERE t.%s IS NULL",
		d.QuoteIdentifier(target),
		d.quoteAll(columns),
		strings.Join(sel, ", "),
		d.QuoteIdentifier(staging),
		d.QuoteIdentifier(target),
		strings.Join(on, " AND "),
		d.QuoteIdentifier(keys[0]),
	), nil
}

func (d *Dialect) MaxPlaceholders() int {
	if d.MaxArgs <= 0 {
		return 65535
	}
	return d.MaxArgs
}

func (d *Dialect) IsDuplicateKey(err error) bool {
	if err == nil || d.DuplicateKey == nil {
		return false
	}
	return d.DuplicateKey(err)
}

// statementRanges 将一个分块拆成若干条语句，使每条语句的参数个数不超过上限
func statementRanges(rows, columns, maxArgs int) []Range {
	if rows == 0 {
		return nil
	}
	per := rows
	if columns > 0 && maxArgs > 0 {
		per = max(1, maxArgs/columns)
	}
	out := make([]Range, 0, (rows+per-1)/per)
	for start := 0; start < rows; start += per {
		out = append(out, Range{Start: start, End: min(start+per, rows)})
	}
	return out
}
