package lmstfy

import (
	"fmt"

	"github.com/bitleak/lmstfy/client"
)

// DefaultTries 默认投递重试次数
const DefaultTries uint16 = 3

// Client Lmstfy 客户端封装
type Client struct {
	cli *client.LmstfyClient
}

// NewClient 创建 Lmstfy 客户端
func NewClient(host string, port int, namespace string, token string) (*Client, error) {
	if host == "" || namespace == "" {
		return nil, fmt.Errorf("lmstfy host and namespace are required")
	}
	cli := client.NewLmstfyClient(host, port, namespace, token)
	return &Client{cli: cli}, nil
}

// Publish 发布消息，返回 job ID
func (c *Client) Publish(queue string, data []byte, ttl, delay uint32) (string, error) {
	jobID, err := c.cli.Publish(queue, data, ttl, DefaultTries, delay)
	if err != nil {
		return "", fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return jobID, nil
}
