// Package milvus 以 Milvus 存放回合记忆向量，每个战役一个分区
package milvus

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rpg-narrative-api/internal/config"
)

var tracer = otel.Tracer("milvus")

// Client 包装 SDK 连接与索引参数
type Client struct {
	milvus client.Client
	prefix string
	index  indexParams
}

type indexParams struct {
	m              int
	efConstruction int
	searchEf       int
}

// NewClient 连接 Milvus；用户名为空时不带认证
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	conn := client.Config{Address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	if cfg.User != "" {
		conn.Username = cfg.User
		conn.Password = cfg.Password
	}

	mc, err := client.NewClient(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", conn.Address, err)
	}

	return &Client{
		milvus: mc,
		prefix: cfg.CollectionPrefix,
		index: indexParams{
			m:              cfg.HNSWM,
			efConstruction: cfg.HNSWEfConstruction,
			searchEf:       cfg.SearchEf,
		},
	}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 查询回合记忆集合是否存在；集合缺失不算故障
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	if _, err := c.milvus.HasCollection(ctx, c.CollectionName(CollectionTurnMemories)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus unreachable: %w", err)
	}
	return nil
}

// CollectionName 加上部署前缀，多个环境可共用一个 Milvus
func (c *Client) CollectionName(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "_" + name
}

func (c *Client) hasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.CollectionName(name))
}

func (c *Client) loadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.CollectionName(name), false)
}
