// webhook.go
package datapush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PandemicInsight/src/processor"
)

const (
	RetryTimes    = 5
	RetryInterval = 2 * time.Second
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// textMessage 机器人webhook的文本消息体(钉钉格式)
type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// robotResponse webhook接口的响应
type robotResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// PushText 向机器人webhook推送文本消息, 失败时重试
func PushText(webhook, content string) error {
	var msg textMessage
	msg.MsgType = "text"
	msg.Text.Content = content

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	var lastErr error
	for i := 0; i < RetryTimes; i++ {
		if i > 0 {
			time.Sleep(RetryInterval)
		}

		lastErr = postOnce(webhook, payload)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("推送失败(重试%d次): %w", RetryTimes, lastErr)
}

func postOnce(webhook string, payload []byte) error {
	resp, err := httpClient.Post(webhook, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook返回状态码: %d", resp.StatusCode)
	}

	var result robotResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("解析webhook响应失败: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("webhook返回错误: %d %s", result.ErrCode, result.ErrMsg)
	}
	return nil
}

// PushSummary 推送一条月度汇总
func PushSummary(webhook string, summary *processor.PeriodSummary) error {
	return PushText(webhook, summary.Format())
}

// PushNoData 推送一条无数据结果
func PushNoData(webhook string, nd *processor.NoData) error {
	return PushText(webhook, nd.String())
}
