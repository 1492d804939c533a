package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"rpg-narrative-api/internal/config"
	"rpg-narrative-api/internal/domain/entity"
	"rpg-narrative-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化 PostgreSQL 与向量存储；milvus 集合与索引在此创建
	deps, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()
	fmt.Printf("Vector backend ready: %s\n", deps.Vector.Name)

	// 3. 建表
	if err := deps.Postgres.AutoMigrate(ctx,
		&entity.Campaign{},
		&entity.Character{},
		&entity.Turn{},
		&entity.CombatStateRecord{},
		&entity.LLMUsageEvent{},
	); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	fmt.Println("Schema migrated.")

	fmt.Println("Bootstrap completed successfully.")
}
