// Package repository 定义战役、回合与用量事件的存储接口
package repository

import (
	"context"
)

// TxKey 事务句柄在 context 中的键；由存储实现写入和读取
type TxKey struct{}

// Transactor 让多个仓储写入落在同一事务内。fn 收到的 ctx 携带事务，返回错误即回滚。
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// 分页默认值与上限，战役列表和回合历史共用
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 从 1 开始的页码
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 把越界参数钳到合法范围，不返回错误
func NewPagination(page, pageSize int) Pagination {
	page = max(page, 1)
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

func (p Pagination) Limit() int { return p.PageSize }

// PagedResult 一页数据与总数
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPagedResult items 为 nil 时替换为空切片，JSON 输出 [] 而不是 null
func NewPagedResult[T any](items []T, total int64, p Pagination) *PagedResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PageSize > 0 {
		pages = int((total + int64(p.PageSize) - 1) / int64(p.PageSize))
	}
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalPages: pages,
	}
}
