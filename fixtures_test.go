package newrows_test

import (
	"math/rand/v2"

	"github.com/rushairer/newrows"
)

// randomComposite 生成 n 行 A,B,C,D 随机整数，取值 [0, maxValue)
func randomComposite(n, maxValue int) newrows.RowSet {
	r := rand.New(rand.NewPCG(uint64(n), uint64(maxValue)))
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{
			int64(r.IntN(maxValue)),
			int64(r.IntN(maxValue)),
			int64(r.IntN(maxValue)),
			int64(r.IntN(maxValue)),
		}
	}
	return newrows.RowSet{Columns: []string{"A", "B", "C", "D"}, Rows: rows}
}
