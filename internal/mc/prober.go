// Package mc 通过 Server List Ping 协议探测 Minecraft 服务器状态
package mc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/chat"

	"mcbridge/internal/logger"
)

// Status 单台服务器的探测结果
type Status struct {
	Online        bool
	Version       string
	Protocol      int
	Players       []string // 在线玩家名（来自 SLP sample）
	PlayersOnline int
	PlayersMax    int
	MOTD          string
	Latency       time.Duration
	Error         bool   // 探测失败（超时、DNS 等），区别于正常离线
	Msg           string // 失败原因
}

// listResponse SLP 状态响应
type listResponse struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
		Sample []struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		} `json:"sample"`
	} `json:"players"`
	Description chat.Message `json:"description"`
}

// Prober 状态探测器
type Prober struct {
	retries int
	timeout time.Duration
}

// NewProber 创建探测器
func NewProber(retries int, timeout time.Duration) *Prober {
	if retries < 1 {
		retries = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{retries: retries, timeout: timeout}
}

// Probe 探测单台服务器，最多尝试 retries 次
// 失败（超时、DNS 解析失败等）不抛错，返回 offline + error 标记
func (p *Prober) Probe(ctx context.Context, addr string) *Status {
	var lastErr error

	for attempt := 0; attempt < p.retries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		data, delay, err := bot.PingAndListTimeout(addr, p.timeout)
		if err != nil {
			lastErr = err
			logger.Debug("mc", "探测失败", "addr", addr, "attempt", attempt+1, "error", err)
			continue
		}

		var resp listResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			lastErr = fmt.Errorf("解析状态响应失败: %w", err)
			continue
		}

		status := &Status{
			Online:        true,
			Version:       resp.Version.Name,
			Protocol:      resp.Version.Protocol,
			PlayersOnline: resp.Players.Online,
			PlayersMax:    resp.Players.Max,
			MOTD:          resp.Description.ClearString(),
			Latency:       delay.Round(time.Millisecond),
		}
		for _, pl := range resp.Players.Sample {
			status.Players = append(status.Players, pl.Name)
		}
		return status
	}

	return &Status{
		Version:       "N/A",
		Protocol:      -1,
		PlayersOnline: -1,
		PlayersMax:    -1,
		Latency:       -1,
		Error:         true,
		Msg:           fmt.Sprint(lastErr),
	}
}
