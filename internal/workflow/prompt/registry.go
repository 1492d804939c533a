// Package prompt 内嵌叙事提示词模板，并编译为 eino ChatTemplate
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

// PromptID 模板版本，对应 templates/<id>.system.txt 与 templates/<id>.user.txt
type PromptID string

const PromptNarratorV1 PromptID = "narrator_v1"

var known = map[PromptID]bool{
	PromptNarratorV1: true,
}

// Registry 首次使用时编译模板，之后复用
type Registry struct {
	mu       sync.Mutex
	compiled map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{compiled: map[PromptID]einoprompt.ChatTemplate{}}
}

// ChatTemplate 系统消息加用户消息，变量使用 {name} 占位
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if !known[id] {
		return nil, fmt.Errorf("unknown prompt %q", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.compiled[id]; ok {
		return tpl, nil
	}

	system, err := load(id, "system")
	if err != nil {
		return nil, err
	}
	user, err := load(id, "user")
	if err != nil {
		return nil, err
	}
	tpl := einoprompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.compiled[id] = tpl
	return tpl, nil
}

func load(id PromptID, role string) (string, error) {
	b, err := templatesFS.ReadFile(fmt.Sprintf("templates/%s.%s.txt", id, role))
	if err != nil {
		return "", fmt.Errorf("prompt %s %s template: %w", id, role, err)
	}
	return strings.TrimSpace(string(b)), nil
}
