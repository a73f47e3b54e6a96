// Package ordering 维护同级实体（看板内的列、列内的卡片）的整数排序。
package ordering

import (
	"context"
	"fmt"
)

// Placement 一次重排后某个实体的新位置。
type Placement struct {
	ID       string
	Position int
}

// Sibling 同级实体的当前位置。
type Sibling struct {
	ID       string
	Position int
}

// Resequence 计算把 movedID 放到 target 下标后的全部位置。
//
// siblings 必须已按 position 升序排列且不包含 movedID。
// target 超出范围时追加到末尾，负数按 0 处理。
func Resequence(siblings []string, movedID string, target int) []Placement {
	if target < 0 {
		target = 0
	}
	out := make([]Placement, 0, len(siblings)+1)
	counter := 0
	placed := false
	for i, id := range siblings {
		if i == target {
			out = append(out, Placement{ID: movedID, Position: counter})
			counter++
			placed = true
		}
		out = append(out, Placement{ID: id, Position: counter})
		counter++
	}
	if !placed {
		out = append(out, Placement{ID: movedID, Position: counter})
	}
	return out
}

// Repository 由存储层实现，分别对应列和卡片。
type Repository interface {
	// Siblings 返回 parentID 下除 excludeID 外的全部未归档实体，按 position 升序。
	Siblings(ctx context.Context, parentID, excludeID string) ([]Sibling, error)
	// Place 写入被移动实体的父级与位置。
	Place(ctx context.Context, id, parentID string, position int) error
	// Renumber 只更新同级实体的位置。
	Renumber(ctx context.Context, id string, position int) error
}

// Engine 对 Repository 执行重排。
//
// 每一行单独写入，不包在事务里；中途失败会留下部分更新的位置。
type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Move 把 id 移动到 parentID 下的 target 位置，返回最终 position。
// 跨父级移动时先改父级再重排目标父级，源父级不压缩。
func (e *Engine) Move(ctx context.Context, id, parentID string, target int) (int, error) {
	siblings, err := e.repo.Siblings(ctx, parentID, id)
	if err != nil {
		return 0, fmt.Errorf("load siblings: %w", err)
	}

	ids := make([]string, len(siblings))
	current := make(map[string]int, len(siblings))
	for i, s := range siblings {
		ids[i] = s.ID
		current[s.ID] = s.Position
	}

	final := 0
	for _, p := range Resequence(ids, id, target) {
		if p.ID == id {
			final = p.Position
			if err := e.repo.Place(ctx, id, parentID, p.Position); err != nil {
				return 0, fmt.Errorf("place %s: %w", id, err)
			}
			continue
		}
		if current[p.ID] == p.Position {
			continue
		}
		if err := e.repo.Renumber(ctx, p.ID, p.Position); err != nil {
			return 0, fmt.Errorf("renumber %s: %w", p.ID, err)
		}
	}
	return final, nil
}
