// Package eino 注册 Eino 全局回调，统一上报模型调用的指标、追踪与用量流水
package eino

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"rpg-narrative-api/internal/domain/service"
)

var initOnce sync.Once

// Init 进程内只生效一次；之后所有 ChatModel 调用都会经过回调。usage 可为空。
func Init(usage service.LLMUsageRecorder) {
	initOnce.Do(func() {
		einocallbacks.AppendGlobalHandlers(cbtemplate.NewHandlerHelper().
			ChatModel(newChatModelCallbackHandler(usage)).
			Handler())
	})
}
