// Package qq 对接 OneBot v11 HTTP 网关
package qq

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client OneBot HTTP API 客户端
// 只负责发出 /send_msg 调用，不做重试，也不校验业务返回。
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient 创建网关客户端
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SendGroupMessage 发送群消息
func (c *Client) SendGroupMessage(ctx context.Context, groupID int64, text string) error {
	params := url.Values{}
	params.Set("message_type", "group")
	params.Set("group_id", strconv.FormatInt(groupID, 10))
	params.Set("message", text)
	return c.sendMsg(ctx, params)
}

// SendPrivateMessage 发送私聊消息
func (c *Client) SendPrivateMessage(ctx context.Context, userID int64, text string) error {
	params := url.Values{}
	params.Set("message_type", "private")
	params.Set("user_id", strconv.FormatInt(userID, 10))
	params.Set("message", text)
	return c.sendMsg(ctx, params)
}

// sendMsg 调用网关 /send_msg 接口，目标通过查询参数选择
func (c *Client) sendMsg(ctx context.Context, params url.Values) error {
	reqURL := c.baseURL + "/send_msg?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求网关失败: %w", err)
	}
	defer resp.Body.Close()

	// 读掉响应体以复用连接，内容不做校验
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("网关返回 HTTP %d", resp.StatusCode)
	}
	return nil
}
