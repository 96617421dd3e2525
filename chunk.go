package newrows

import "fmt"

const (
	// DefaultInitialChunkSize 首块大小，首块同步写入以便尽早暴露目标表错误
	DefaultInitialChunkSize = 100
	// DefaultSteadyChunkSize 稳态分块大小
	DefaultSteadyChunkSize = 1000
)

// Range 半开区间 [Start, End)
type Range struct {
	Start int
	End   int
}

// Len 区间长度
func (r Range) Len() int { return r.End - r.Start }

// Empty 空区间不执行写入
func (r Range) Empty() bool { return r.End <= r.Start }

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// ChunkPlan 覆盖 [0, total) 的连续、互不重叠的区间序列
type ChunkPlan []Range

// Plan 计算分块计划
//
//   - totalRows <= steadyChunk：单个区间 [0, totalRows)
//   - 否则：首块 [0, min(initialChunk, totalRows))，
//     剩余 R 行拆成 R/steadyChunk（整数除法）个稳态块，
//     最后一个区间保存余数 R%steadyChunk（可能为空）
func Plan(totalRows, initialChunk, steadyChunk int) (ChunkPlan, error) {
	if steadyChunk < 1 {
		return nil, configErrorf("steady_chunk", "must be >= 1, got %d", steadyChunk)
	}
	if initialChunk < 0 {
		return nil, configErrorf("initial_chunk", "must be >= 0, got %d", initialChunk)
	}
	if totalRows < 0 {
		return nil, configErrorf("total_rows", "must be >= 0, got %d", totalRows)
	}

	if totalRows <= steadyChunk {
		return ChunkPlan{{Start: 0, End: totalRows}}, nil
	}

	first := min(initialChunk, totalRows)
	remaining := totalRows - first
	steady := remaining / steadyChunk

	plan := make(ChunkPlan, 0, steady+2)
	plan = append(plan, Range{Start: 0, End: first})
	offset := first
	for i := 0; i < steady; i++ {
		plan = append(plan, Range{Start: offset, End: offset + steadyChunk})
		offset += steadyChunk
	}
	plan = append(plan, Range{Start: offset, End: totalRows})
	return plan, nil
}

// Total 计划覆盖的行数
func (p ChunkPlan) Total() int {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1].End
}

// Validate 校验计划恰好覆盖 [0, total)
func (p ChunkPlan) Validate(total int) error {
	if len(p) == 0 {
		return configErrorf("plan", "chunk plan is empty")
	}
	next := 0
	for i, r := range p {
		if r.Start != next || r.End < r.Start {
			return configErrorf("plan", "range %d %s is not contiguous with offset %d", i, r, next)
		}
		next = r.End
	}
	if next != total {
		return configErrorf("plan", "plan covers %d rows, row set has %d", next, total)
	}
	return nil
}

// Interior 首尾之间的区间，由并发任务写入
func (p ChunkPlan) Interior() []Range {
	if len(p) <= 2 {
		return nil
	}
	return p[1 : len(p)-1]
}
