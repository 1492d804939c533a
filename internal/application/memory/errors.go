package memory

import (
	apperrors "rpg-narrative-api/pkg/errors"
)

var (
	// ErrNamespaceRequired 未指定战役
	ErrNamespaceRequired = apperrors.ErrInvalidInput.WithDetail("campaign_id is required")
	// ErrTurnIDRequired 条目缺少回合 ID
	ErrTurnIDRequired = apperrors.ErrInvalidInput.WithDetail("turn_id is required")
	// ErrEmptyVector 向量为空
	ErrEmptyVector = apperrors.ErrInvalidInput.WithDetail("embedding vector is empty")
)
