package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcbridge/internal/logger"
)

// Watcher 配置文件监听器，用于热更新管理员列表和服务器列表
type Watcher struct {
	filename     string
	watcher      *fsnotify.Watcher
	onReload     func(*Config)
	debounceTime time.Duration
}

// NewWatcher 创建配置监听器
func NewWatcher(filename string, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		filename:     filename,
		watcher:      watcher,
		onReload:     onReload,
		debounceTime: 200 * time.Millisecond, // 防抖延迟
	}, nil
}

// Start 启动监听（监听父目录以兼容不同编辑器）
func (w *Watcher) Start(ctx context.Context) error {
	// 监听父目录而非文件本身，避免编辑器 rename 导致监听失效
	dir := filepath.Dir(w.filename)
	targetFile := filepath.Clean(w.filename)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	logger.Info("config", "开始监听配置文件", "file", w.filename, "dir", dir)

	go func() {
		var debounceTimer *time.Timer
		for {
			select {
			case <-ctx.Done():
				logger.Info("config", "配置监听器已停止")
				w.watcher.Close()
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}

				// 只关心目标配置文件的写入/创建/重命名事件
				if filepath.Clean(event.Name) != targetFile {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounceTime, w.reload)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config", "配置监听错误", "error", err)
			}
		}
	}()

	return nil
}

// reload 重新加载配置并通知回调
func (w *Watcher) reload() {
	cfg, err := Load(w.filename)
	if err != nil {
		logger.Warn("config", "配置热更新失败，沿用旧配置", "error", err)
		return
	}

	logger.Info("config", "配置已热更新",
		"admins", len(cfg.Admin),
		"servers", len(cfg.Servers))

	if w.onReload != nil {
		w.onReload(cfg)
	}
}
