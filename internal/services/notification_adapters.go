package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/pkg/logger"
)

// NotificationAdapter formats and posts a merge notification for one IM platform.
type NotificationAdapter interface {
	Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error
}

func getAdapter(botType string) NotificationAdapter {
	switch botType {
	case "wechat_work":
		return &wecomAdapter{}
	case "dingtalk":
		return &dingtalkAdapter{}
	case "feishu":
		return &feishuAdapter{}
	case "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	case "telegram":
		return &telegramAdapter{}
	default:
		return &genericAdapter{}
	}
}

var notificationHTTPClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(ctx context.Context, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	logger.Infof("[Notification] POST %s, payload length: %d", webhookURL, len(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := notificationHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityHigh:
		return "🟠"
	case models.SeverityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

func buildMergeMessage(n *MergeNotification) string {
	summary := n.Summary
	if len(summary) > 500 {
		summary = summary[:500] + "..."
	}

	msg := fmt.Sprintf(`✅ **AI Fix Merged**

**Project**: %s
**Issue**: %s
%s **Severity**: %s
**File**: %s
**Confidence**: %d%%`, n.ProjectName, n.IssueTitle, severityEmoji(n.Severity), n.Severity, n.FilePath, n.Confidence)

	if summary != "" {
		msg += "\n\n---\n" + summary
	}
	if n.PRURL != "" {
		msg += fmt.Sprintf("\n\n🔗 [View PR #%d](%s)", n.PRNumber, n.PRURL)
	}
	return msg
}

func dingTalkSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func feishuSign(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func dingTalkWebhookURL(webhook, secret string, at time.Time) string {
	if secret == "" {
		return webhook
	}
	timestamp := at.UnixMilli()
	sign := dingTalkSign(timestamp, secret)
	return fmt.Sprintf("%s&timestamp=%d&sign=%s", webhook, timestamp, url.QueryEscape(sign))
}

// wecomAdapter handles WeCom (Enterprise WeChat) bots.
type wecomAdapter struct{}

func (a *wecomAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	return postJSON(ctx, bot.Webhook, map[string]interface{}{
		"msgtype": "markdown_v2",
		"markdown_v2": map[string]string{
			"content": buildMergeMessage(n),
		},
	})
}

type dingtalkAdapter struct{}

func (a *dingtalkAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	return postJSON(ctx, dingTalkWebhookURL(bot.Webhook, bot.Secret, time.Now()), map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": fmt.Sprintf("AI Fix Merged: %s", n.ProjectName),
			"text":  buildMergeMessage(n),
		},
	})
}

// feishuAdapter handles Feishu (Lark) bots.
type feishuAdapter struct{}

func (a *feishuAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content": map[string]string{
			"text": buildMergeMessage(n),
		},
	}
	if bot.Secret != "" {
		timestamp := time.Now().Unix()
		payload["timestamp"] = fmt.Sprintf("%d", timestamp)
		payload["sign"] = feishuSign(timestamp, bot.Secret)
	}
	return postJSON(ctx, bot.Webhook, payload)
}

type slackAdapter struct{}

func (a *slackAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	header := fmt.Sprintf("*AI Fix Merged*\n*Project*: %s\n*Issue*: %s\n*Severity*: %s\n*Confidence*: %d%%",
		n.ProjectName, n.IssueTitle, n.Severity, n.Confidence)
	blocks := []map[string]interface{}{
		{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": header},
		},
	}
	if n.PRURL != "" {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("<%s|View PR #%d>", n.PRURL, n.PRNumber)},
		})
	}
	return postJSON(ctx, bot.Webhook, map[string]interface{}{
		"text":   header,
		"blocks": blocks,
	})
}

type discordAdapter struct{}

func (a *discordAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	return postJSON(ctx, bot.Webhook, map[string]interface{}{
		"content": buildMergeMessage(n),
	})
}

// teamsAdapter handles Microsoft Teams incoming webhooks.
type teamsAdapter struct{}

func buildAdaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{"type": "TextBlock", "text": text, "wrap": true},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	return postJSON(ctx, bot.Webhook, buildAdaptiveCard(buildMergeMessage(n)))
}

type telegramAdapter struct{}

func (a *telegramAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	if bot.Extra == "" {
		return fmt.Errorf("telegram chat_id is required in extra field")
	}
	return postJSON(ctx, bot.Webhook, map[string]interface{}{
		"chat_id":    bot.Extra,
		"text":       buildMergeMessage(n),
		"parse_mode": "Markdown",
	})
}

// genericAdapter posts the raw notification fields as JSON.
type genericAdapter struct{}

func (a *genericAdapter) Send(ctx context.Context, bot *models.IMBot, n *MergeNotification) error {
	return postJSON(ctx, bot.Webhook, map[string]interface{}{
		"event":       "ai_fix_merged",
		"project":     n.ProjectName,
		"issue_title": n.IssueTitle,
		"severity":    n.Severity,
		"file_path":   n.FilePath,
		"pr_number":   n.PRNumber,
		"pr_url":      n.PRURL,
		"confidence":  n.Confidence,
		"summary":     n.Summary,
	})
}
