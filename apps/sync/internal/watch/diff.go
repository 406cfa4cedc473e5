// Package watch 基于变更通知的快照订阅。
//
// 订阅流程：先订阅 topic，再加载初始快照并立即回调（即便为空），
// 之后每收到通知或兜底定时器触发时重查，与上一份快照按 key 做差，非空差异才回调。
// 先订阅后加载，保证两者之间发生的写入一定会触发一次重查。
package watch

import "reflect"

// Update 集合订阅的一次回调
type Update[T any] struct {
	Items    []T // 当前完整快照，调用方不得修改
	Added    []T
	Modified []T
	Removed  []T
	Initial  bool
}

// Empty 是否没有任何差异
func (u Update[T]) Empty() bool {
	return len(u.Added) == 0 && len(u.Modified) == 0 && len(u.Removed) == 0
}

// Diff 按 key 计算 prev -> next 的差异，结果按 next/prev 中的原始顺序排列
func Diff[T any](prev, next []T, key func(T) string, equal func(a, b T) bool) Update[T] {
	if equal == nil {
		equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	old := make(map[string]T, len(prev))
	for _, item := range prev {
		old[key(item)] = item
	}

	u := Update[T]{Items: next}
	seen := make(map[string]struct{}, len(next))
	for _, item := range next {
		k := key(item)
		seen[k] = struct{}{}
		before, ok := old[k]
		switch {
		case !ok:
			u.Added = append(u.Added, item)
		case !equal(before, item):
			u.Modified = append(u.Modified, item)
		}
	}
	for _, item := range prev {
		if _, ok := seen[key(item)]; !ok {
			u.Removed = append(u.Removed, item)
		}
	}
	return u
}
