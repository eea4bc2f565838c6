package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"larkexport/internal/models"
)

// DefaultBaseURL is the Lark open platform endpoint. Feishu tenants use
// https://open.feishu.cn/open-apis instead.
const DefaultBaseURL = "https://open.larksuite.com/open-apis"

// SystemSender is returned for messages without a sender open ID.
const SystemSender = "System"

const pageSize = "50"

// Client talks to the Lark open API with an application identity.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client
}

func NewClient(baseURL, appID, appSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		appID:     appID,
		appSecret: appSecret,
		http:      &http.Client{Timeout: 20 * time.Second},
	}
}

// TenantAccessToken exchanges the app id and secret for a tenant access
// token. The token is fetched fresh per call; callers hold it for the
// duration of one export.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	payload := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	data, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v3/tenant_access_token/internal", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return "", fmt.Errorf("get token status=%d body=%s", res.StatusCode, string(body))
	}
	var r struct {
		Code              int    `json:"code"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if r.Code != 0 {
		return "", fmt.Errorf("get token api error code=%d body=%s", r.Code, string(body))
	}
	return r.TenantAccessToken, nil
}

// ListChats pages through every chat group visible to the application.
func (c *Client) ListChats(ctx context.Context, token string) ([]models.ChatSummary, error) {
	chats := make([]models.ChatSummary, 0)
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("page_size", pageSize)
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}
		body, err := c.get(ctx, token, "/im/v1/chats", q)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				Items     []models.ChatSummary `json:"items"`
				PageToken string               `json:"page_token"`
				HasMore   bool                 `json:"has_more"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode chat list: %w", err)
		}
		if payload.Code != 0 {
			return nil, fmt.Errorf("list chats api error code=%d msg=%s", payload.Code, payload.Msg)
		}
		chats = append(chats, payload.Data.Items...)
		if !payload.Data.HasMore {
			break
		}
		pageToken = payload.Data.PageToken
	}
	return chats, nil
}

// ListMessages pages through every message of a chat, optionally bounded
// by a time window. Messages always come back oldest-first: the windowed
// shape requests ascending order from the API, the unfiltered shape is
// returned newest-first by the API and reversed here.
func (c *Client) ListMessages(ctx context.Context, token, chatID string, window *models.TimeWindow) ([]models.RawMessage, error) {
	var msgs []models.RawMessage
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("container_id_type", "chat")
		q.Set("container_id", chatID)
		q.Set("page_size", pageSize)
		if window != nil {
			q.Set("sort_type", "ByCreateTimeAsc")
			if !window.Start.IsZero() {
				q.Set("start_time", strconv.FormatInt(window.Start.Unix(), 10))
			}
			if !window.End.IsZero() {
				q.Set("end_time", strconv.FormatInt(window.End.Unix(), 10))
			}
		}
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}
		body, err := c.get(ctx, token, "/im/v1/messages", q)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		var payload struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
			Data struct {
				Items []struct {
					MessageID string `json:"message_id"`
					Sender    struct {
						ID string `json:"id"`
					} `json:"sender"`
					CreateTime string `json:"create_time"`
					Body       struct {
						Content string `json:"content"`
					} `json:"body"`
				} `json:"items"`
				PageToken string `json:"page_token"`
				HasMore   bool   `json:"has_more"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode message list: %w", err)
		}
		if payload.Code != 0 {
			return nil, fmt.Errorf("list messages api error code=%d msg=%s", payload.Code, payload.Msg)
		}
		for _, item := range payload.Data.Items {
			msgs = append(msgs, models.RawMessage{
				MessageID:    item.MessageID,
				SenderOpenID: item.Sender.ID,
				Content:      item.Body.Content,
				CreateTime:   item.CreateTime,
			})
		}
		if !payload.Data.HasMore {
			break
		}
		pageToken = payload.Data.PageToken
	}
	if window == nil {
		// API default is newest-first when no sort is requested.
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

// UserName resolves an open ID to a display name. An empty open ID is a
// system message and resolves locally; a lookup response without a name
// falls back to the open ID itself.
func (c *Client) UserName(ctx context.Context, token, openID string) (string, error) {
	if openID == "" {
		return SystemSender, nil
	}
	q := url.Values{}
	q.Set("user_id_type", "open_id")
	body, err := c.get(ctx, token, "/contact/v3/users/"+url.PathEscape(openID), q)
	if err != nil {
		return "", fmt.Errorf("lookup user %s: %w", openID, err)
	}
	var payload struct {
		Data struct {
			User struct {
				Name string `json:"name"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode user lookup: %w", err)
	}
	if payload.Data.User.Name == "" {
		return openID, nil
	}
	return payload.Data.User.Name, nil
}

func (c *Client) get(ctx context.Context, token, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("status=%d body=%s", res.StatusCode, string(body))
	}
	return body, nil
}
