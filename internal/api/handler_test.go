package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mcbridge/internal/qq"
)

// fakeDispatcher 记录收到的事件
type fakeDispatcher struct {
	events []*qq.Event
}

func (f *fakeDispatcher) HandleEvent(_ context.Context, e *qq.Event) {
	f.events = append(f.events, e)
}

func (f *fakeDispatcher) StatusReport(_ context.Context, qid int64) string {
	return fmt.Sprintf("[CQ:at,qq=%d] ====== 服务器状态一览 ======", qid)
}

// fakeController 白名单桩
type fakeController struct {
	added  []string
	addErr error
}

func (f *fakeController) Add(_ context.Context, name string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, name)
	return nil
}

func (f *fakeController) Remove(context.Context, string) error { return nil }

func newTestServer(dispatcher *fakeDispatcher, wl *fakeController) *Server {
	return NewServer(NewHandler(dispatcher, wl), ":0")
}

func TestWebhookDispatchesEvent(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newTestServer(dispatcher, &fakeController{})

	body := `{
		"post_type": "message",
		"message_type": "group",
		"group_id": 777,
		"raw_message": "/bind Steve123",
		"sender": {"user_id": 1001}
	}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	// 无论处理结果如何都返回纯文本 success
	if w.Code != http.StatusOK || w.Body.String() != "success" {
		t.Fatalf("响应不符：code=%d body=%q", w.Code, w.Body.String())
	}

	if len(dispatcher.events) != 1 {
		t.Fatalf("事件未进入分发器：%d", len(dispatcher.events))
	}
	e := dispatcher.events[0]
	if e.RawMessage != "/bind Steve123" || e.SenderID() != 1001 || e.GroupID != 777 {
		t.Fatalf("事件字段不符：%+v", e)
	}
}

func TestWebhookBadBodyStillSucceeds(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	s := newTestServer(dispatcher, &fakeController{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "success" {
		t.Fatalf("响应不符：code=%d body=%q", w.Code, w.Body.String())
	}
	if len(dispatcher.events) != 0 {
		t.Fatal("解析失败的上报不应进入分发器")
	}
}

func TestDebugStatus(t *testing.T) {
	s := newTestServer(&fakeDispatcher{}, &fakeController{})

	req := httptest.NewRequest(http.MethodGet, "/debug/minecraft/status/1001", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("预期 200，实际 %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "[CQ:at,qq=1001]") {
		t.Fatalf("报告不符：%q", w.Body.String())
	}

	// 非数字 id
	req = httptest.NewRequest(http.MethodGet, "/debug/minecraft/status/abc", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("非法 id 预期 400，实际 %d", w.Code)
	}
}

func TestDebugAddWhitelist(t *testing.T) {
	wl := &fakeController{}
	s := newTestServer(&fakeDispatcher{}, wl)

	// 缺少 username 字段
	req := httptest.NewRequest(http.MethodGet, "/debug/minecraft/addWhitelist", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), "You must specify a username!") {
		t.Fatalf("缺字段提示不符：%q", w.Body.String())
	}

	// 带 username
	req = httptest.NewRequest(http.MethodGet, "/debug/minecraft/addWhitelist?username=Steve123", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if len(wl.added) != 1 || wl.added[0] != "Steve123" {
		t.Fatalf("白名单添加未被调用：%v", wl.added)
	}
	if !strings.Contains(w.Body.String(), "Steve123") {
		t.Fatalf("响应不符：%q", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeDispatcher{}, &fakeController{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("预期 200，实际 %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(&fakeDispatcher{}, &fakeController{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("响应缺少 X-Request-ID")
	}

	// 请求自带的 ID 原样回传
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("预期回传 fixed-id，实际 %q", got)
	}
}
