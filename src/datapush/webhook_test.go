package datapush

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"PandemicInsight/src/processor"
)

func TestPushText(t *testing.T) {
	var received textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("请求体不是合法JSON: %v", err)
		}
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	if err := PushText(srv.URL, "测试消息"); err != nil {
		t.Fatalf("PushText error: %v", err)
	}
	if received.MsgType != "text" {
		t.Errorf("msgtype = %q, want text", received.MsgType)
	}
	if received.Text.Content != "测试消息" {
		t.Errorf("content = %q, want 测试消息", received.Text.Content)
	}
}

// 失败分支只测单次请求, 避免重试等待拖慢用例
func TestPostOnceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/errcode":
			w.Write([]byte(`{"errcode":310000,"errmsg":"keyword not in content"}`))
		case "/badstatus":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
		}
	}))
	defer srv.Close()

	payload := []byte(`{"msgtype":"text","text":{"content":"x"}}`)

	if err := postOnce(srv.URL+"/ok", payload); err != nil {
		t.Errorf("正常响应不应报错: %v", err)
	}
	if err := postOnce(srv.URL+"/errcode", payload); err == nil {
		t.Error("errcode非0应报错")
	}
	if err := postOnce(srv.URL+"/badstatus", payload); err == nil {
		t.Error("非200状态码应报错")
	}
}

func TestPushNoData(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg textMessage
		json.NewDecoder(r.Body).Decode(&msg)
		content = msg.Text.Content
		w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	nd := &processor.NoData{Location: "Atlantis", MonthName: "January", Year: 2021}
	if err := PushNoData(srv.URL, nd); err != nil {
		t.Fatalf("PushNoData error: %v", err)
	}
	if !strings.Contains(content, "Atlantis") || !strings.Contains(content, "无数据") {
		t.Errorf("推送内容 = %q", content)
	}
}
