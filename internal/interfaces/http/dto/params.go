package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"rpg-narrative-api/internal/domain/repository"
)

// BindCampaignID 路由参数 :cid
func BindCampaignID(c *gin.Context) string {
	return c.Param("cid")
}

// BindPage 读取 page 与 page_size；非数字按缺省处理，越界值被钳到合法范围
func BindPage(c *gin.Context) repository.Pagination {
	return repository.NewPagination(queryInt(c, "page"), queryInt(c, "page_size"))
}

// BindLimit 读取正整数 limit，缺省或非法时返回 def，上限 ceiling
func BindLimit(c *gin.Context, def, ceiling int) int {
	n := queryInt(c, "limit")
	if n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}
