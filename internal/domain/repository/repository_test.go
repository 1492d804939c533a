package repository

import "testing"

func TestNewPaginationClamps(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{-3, 10, 1, 10},
		{2, 500, 2, MaxPageSize},
		{4, 25, 4, 25},
	}
	for _, tt := range tests {
		got := NewPagination(tt.page, tt.size)
		if got.Page != tt.wantPage || got.PageSize != tt.wantSize {
			t.Errorf("NewPagination(%d, %d) = %+v", tt.page, tt.size, got)
		}
	}
	if off := NewPagination(3, 20).Offset(); off != 40 {
		t.Fatalf("offset = %d, want 40", off)
	}
}

func TestNewPagedResultTotalPages(t *testing.T) {
	tests := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{5, 2, 3},
	}
	for _, tt := range tests {
		got := NewPagedResult[int](nil, tt.total, Pagination{Page: 1, PageSize: tt.size})
		if got.TotalPages != tt.want {
			t.Errorf("total=%d size=%d: pages = %d, want %d", tt.total, tt.size, got.TotalPages, tt.want)
		}
		if got.Items == nil {
			t.Errorf("items should be an empty slice, got nil")
		}
	}
}
