package newrows

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// KeyHash 键值的 128 位摘要，作为存在性集合的元素
type KeyHash [16]byte

// keyEncoder 把一行的键列编码成规范字节序列再求摘要
// 不同驱动扫描出的类型不同（int64、[]byte、float64...），统一转成文本后比较，
// 因此内存中的 int(5) 与数据库返回的 []byte("5") 视为同一个键
type keyEncoder struct {
	idx []int
	buf []byte
}

func newKeyEncoder(keys KeySpec, columns []string) *keyEncoder {
	return &keyEncoder{idx: keys.indexes(columns)}
}

// hashRow 对 row 中的键列求摘要
func (e *keyEncoder) hashRow(row []any) KeyHash {
	e.buf = e.buf[:0]
	for _, i := range e.idx {
		e.buf = appendKeyValue(e.buf, row[i])
	}
	return KeyHash(xxh3.Hash128(e.buf).Bytes())
}

// hashValues 对已按 KeySpec 顺序排列的值求摘要
func (e *keyEncoder) hashValues(values []any) KeyHash {
	e.buf = e.buf[:0]
	for _, v := range values {
		e.buf = appendKeyValue(e.buf, v)
	}
	return KeyHash(xxh3.Hash128(e.buf).Bytes())
}

// appendKeyValue nil 编码为单字节 'n'，其余编码为 'v' + uvarint 长度 + 文本
func appendKeyValue(b []byte, v any) []byte {
	if v == nil {
		return append(b, 'n')
	}
	var text []byte
	switch x := v.(type) {
	case string:
		text = []byte(x)
	case []byte:
		text = x
	case int:
		text = strconv.AppendInt(nil, int64(x), 10)
	case int8:
		text = strconv.AppendInt(nil, int64(x), 10)
	case int16:
		text = strconv.AppendInt(nil, int64(x), 10)
	case int32:
		text = strconv.AppendInt(nil, int64(x), 10)
	case int64:
		text = strconv.AppendInt(nil, x, 10)
	case uint:
		text = strconv.AppendUint(nil, uint64(x), 10)
	case uint8:
		text = strconv.AppendUint(nil, uint64(x), 10)
	case uint16:
		text = strconv.AppendUint(nil, uint64(x), 10)
	case uint32:
		text = strconv.AppendUint(nil, uint64(x), 10)
	case uint64:
		text = strconv.AppendUint(nil, x, 10)
	case float32:
		text = appendFloat(nil, float64(x), 32)
	case float64:
		text = appendFloat(nil, x, 64)
	case bool:
		if x {
			text = []byte{'1'}
		} else {
			text = []byte{'0'}
		}
	case time.Time:
		text = x.UTC().AppendFormat(nil, time.RFC3339Nano)
	case driver.Valuer:
		if isNilPointer(x) {
			return append(b, 'n')
		}
		dv, err := x.Value()
		if err != nil {
			text = []byte(fmt.Sprint(v))
			break
		}
		return appendKeyValue(b, dv)
	default:
		if isNilPointer(x) {
			return append(b, 'n')
		}
		text = []byte(fmt.Sprint(v))
	}
	b = append(b, 'v')
	b = binary.AppendUvarint(b, uint64(len(text)))
	return append(b, text...)
}

// isNilPointer 带类型的 nil 指针按 NULL 处理
func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// appendFloat 整数值的浮点数按整数书写，与整数列的文本形式一致
func appendFloat(b []byte, f float64, bitSize int) []byte {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.AppendInt(b, int64(f), 10)
	}
	return strconv.AppendFloat(b, f, 'g', -1, bitSize)
}
