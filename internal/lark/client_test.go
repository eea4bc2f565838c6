package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"larkexport/internal/models"
)

func TestTenantAccessToken(t *testing.T) {
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v3/tenant_access_token/internal" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"code":0,"msg":"ok","tenant_access_token":"t-abc","expire":7200}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "app-1", "secret-1")
	token, err := c.TenantAccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "t-abc" {
		t.Errorf("expected token t-abc, got %q", token)
	}
	if gotBody["app_id"] != "app-1" || gotBody["app_secret"] != "secret-1" {
		t.Errorf("unexpected auth payload: %v", gotBody)
	}
}

func TestTenantAccessTokenNonZeroCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":99991663,"msg":"app not found"}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "app-1", "bad")
	_, err := c.TenantAccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error for non-zero code")
	}
	// the raw payload rides along for diagnostics
	if want := "app not found"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q should contain %q", err.Error(), want)
	}
}

func TestListChatsPagination(t *testing.T) {
	pages := []string{
		`{"code":0,"data":{"items":[{"chat_id":"c1","name":"Alpha"},{"chat_id":"c2","name":"Beta"}],"has_more":true,"page_token":"p2"}}`,
		`{"code":0,"data":{"items":[],"has_more":true,"page_token":"p3"}}`,
		`{"code":0,"data":{"items":[{"chat_id":"c3","name":"Gamma"}],"has_more":false}}`,
	}
	var calls int
	var tokens []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.URL.Query().Get("page_token"))
		if got := r.URL.Query().Get("page_size"); got != "50" {
			t.Errorf("expected page_size=50, got %q", got)
		}
		fmt.Fprint(w, pages[calls])
		calls++
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	chats, err := c.ListChats(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 page fetches, got %d", calls)
	}
	if len(chats) != 3 {
		t.Fatalf("expected 3 chats, got %d", len(chats))
	}
	if chats[0].ChatID != "c1" || chats[1].ChatID != "c2" || chats[2].ChatID != "c3" {
		t.Errorf("chats out of fetch order: %+v", chats)
	}
	if tokens[0] != "" || tokens[1] != "p2" || tokens[2] != "p3" {
		t.Errorf("unexpected cursor sequence: %v", tokens)
	}
}

func TestListChatsMissingHasMore(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"code":0,"data":{"items":[{"chat_id":"c1"}]}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	chats, err := c.ListChats(context.Background(), "tok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("absent has_more must terminate after one page, got %d fetches", calls)
	}
	if len(chats) != 1 {
		t.Errorf("expected 1 chat, got %d", len(chats))
	}
}

func messagesPage(hasMore bool, pageToken string, ids ...string) string {
	type item struct {
		MessageID string `json:"message_id"`
		Sender    struct {
			ID string `json:"id"`
		} `json:"sender"`
		CreateTime string `json:"create_time"`
		Body       struct {
			Content string `json:"content"`
		} `json:"body"`
	}
	items := make([]item, 0, len(ids))
	for i, id := range ids {
		var it item
		it.MessageID = id
		it.Sender.ID = "ou_" + id
		it.CreateTime = fmt.Sprintf("%d", 1700000000000+int64(i))
		it.Body.Content = `{"text":"msg ` + id + `"}`
		items = append(items, it)
	}
	payload := map[string]any{
		"code": 0,
		"data": map[string]any{
			"items":      items,
			"has_more":   hasMore,
			"page_token": pageToken,
		},
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func TestListMessagesUnfilteredIsChronological(t *testing.T) {
	// remote default order is newest-first
	pages := []string{
		messagesPage(true, "p2", "m3", "m2"),
		messagesPage(false, "", "m1"),
	}
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sort_type") != "" {
			t.Errorf("unfiltered fetch must not request a sort, got %q", q.Get("sort_type"))
		}
		if q.Get("container_id_type") != "chat" || q.Get("container_id") != "C1" {
			t.Errorf("unexpected container params: %v", q)
		}
		fmt.Fprint(w, pages[calls])
		calls++
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	msgs, err := c.ListMessages(context.Background(), "tok", "C1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 page fetches, got %d", calls)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].MessageID != "m1" || msgs[1].MessageID != "m2" || msgs[2].MessageID != "m3" {
		t.Errorf("messages not chronological: %s %s %s", msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID)
	}
}

func TestListMessagesWindowedIsChronological(t *testing.T) {
	pages := []string{
		messagesPage(true, "p2", "m1", "m2"),
		messagesPage(false, "", "m3"),
	}
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sort_type") != "ByCreateTimeAsc" {
			t.Errorf("windowed fetch must request ascending order, got %q", q.Get("sort_type"))
		}
		if q.Get("start_time") != "1700000000" {
			t.Errorf("unexpected start_time %q", q.Get("start_time"))
		}
		if q.Get("end_time") != "1700086400" {
			t.Errorf("unexpected end_time %q", q.Get("end_time"))
		}
		fmt.Fprint(w, pages[calls])
		calls++
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	window := &models.TimeWindow{
		Start: timeFromUnix(1700000000),
		End:   timeFromUnix(1700086400),
	}
	msgs, err := c.ListMessages(context.Background(), "tok", "C1", window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].MessageID != "m1" || msgs[1].MessageID != "m2" || msgs[2].MessageID != "m3" {
		t.Errorf("messages not chronological: %s %s %s", msgs[0].MessageID, msgs[1].MessageID, msgs[2].MessageID)
	}
}

func TestUserNameEmptyOpenID(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	name, err := c.UserName(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "System" {
		t.Errorf(`expected "System", got %q`, name)
	}
	if calls != 0 {
		t.Errorf("empty open ID must not hit the network, got %d calls", calls)
	}
}

func TestUserName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contact/v3/users/ou_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("user_id_type") != "open_id" {
			t.Errorf("missing user_id_type param")
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer header")
		}
		fmt.Fprint(w, `{"code":0,"data":{"user":{"name":"Nguyễn Văn A"}}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	name, err := c.UserName(context.Background(), "tok", "ou_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "Nguyễn Văn A" {
		t.Errorf("unexpected name %q", name)
	}
}

func TestUserNameMissingNameFallsBack(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"user":{}}}`)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "a", "s")
	name, err := c.UserName(context.Background(), "tok", "ou_999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "ou_999" {
		t.Errorf("expected fallback to open ID, got %q", name)
	}
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
