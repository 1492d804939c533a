// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"regexp"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionTurnMemories 回合记忆集合，每个战役一个分区
	CollectionTurnMemories = "turn_memories"

	fieldTurnID        = "turn_id"
	fieldCampaignID    = "campaign_id"
	fieldSequenceIndex = "sequence_index"
	fieldTimestamp     = "timestamp"
	fieldIsCombat      = "is_combat"
	fieldVector        = "vector"
)

// TurnMemoriesSchema 回合记忆 Collection Schema
func TurnMemoriesSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionTurnMemories,
		Description:    "Per-campaign turn memories for narrative retrieval",
		Fields: []*entity.Field{
			{
				Name:       fieldTurnID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldCampaignID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldSequenceIndex,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldTimestamp,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldIsCombat,
				DataType: entity.FieldTypeBool,
			},
		},
	}
}

var partitionUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// PartitionName 生成战役分区名称；Milvus 分区名只允许字母数字与下划线
func PartitionName(campaignID string) string {
	return "campaign_" + partitionUnsafe.ReplaceAllString(campaignID, "_")
}
