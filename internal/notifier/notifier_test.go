package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/ylqcxwl/youtube-notifier/internal/config"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type mockAPI struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.err
}

func testConfig(chatID string) *config.Config {
	cfg := config.Default()
	cfg.TelegramToken = "test-token"
	cfg.TelegramChatID = chatID
	return cfg
}

func testItem(thumb string) model.Item {
	published := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	return model.Item{
		ID:           "vid1",
		Title:        "Hello",
		Link:         "https://www.youtube.com/watch?v=vid1",
		PublishedAt:  &published,
		ThumbnailURL: thumb,
		Category:     model.CategoryVideo,
	}
}

func TestSendChoosesPayload(t *testing.T) {
	tests := []struct {
		name         string
		chatID       string
		thumb        string
		wantPhoto    bool
		wantChatID   int64
		wantUsername string
	}{
		{name: "photo to numeric chat", chatID: "-100123", thumb: "https://i.ytimg.com/vi/vid1/hq.jpg", wantPhoto: true, wantChatID: -100123},
		{name: "text to numeric chat", chatID: "42", wantChatID: 42},
		{name: "photo to channel", chatID: "@gophers", thumb: "https://i.ytimg.com/vi/vid1/hq.jpg", wantPhoto: true, wantUsername: "@gophers"},
		{name: "text to channel without at sign", chatID: "gophers", wantUsername: "@gophers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			n := newWithAPI(api, testConfig(tt.chatID), discard)

			if err := n.Send(context.Background(), testItem(tt.thumb), "Chan"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(api.sent) != 1 {
				t.Fatalf("expected 1 request, got %d", len(api.sent))
			}

			var base tgbotapi.BaseChat
			switch c := api.sent[0].(type) {
			case tgbotapi.PhotoConfig:
				if !tt.wantPhoto {
					t.Fatal("unexpected photo payload")
				}
				if diff := cmp.Diff(tgbotapi.ModeMarkdownV2, c.ParseMode); diff != "" {
					t.Errorf("parse mode mismatch (-want +got):\n%s", diff)
				}
				if diff := cmp.Diff(tgbotapi.FileURL(tt.thumb), c.File); diff != "" {
					t.Errorf("photo mismatch (-want +got):\n%s", diff)
				}
				base = c.BaseChat
			case tgbotapi.MessageConfig:
				if tt.wantPhoto {
					t.Fatal("expected photo payload, got text")
				}
				if diff := cmp.Diff(tgbotapi.ModeMarkdownV2, c.ParseMode); diff != "" {
					t.Errorf("parse mode mismatch (-want +got):\n%s", diff)
				}
				base = c.BaseChat
			default:
				t.Fatalf("unexpected payload %T", c)
			}
			if diff := cmp.Diff(tt.wantChatID, base.ChatID); diff != "" {
				t.Errorf("chat id mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantUsername, base.ChannelUsername); diff != "" {
				t.Errorf("channel username mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSendLongCaptionFallsBackToText(t *testing.T) {
	tests := []struct {
		name      string
		desc      string
		wantPhoto bool
	}{
		{name: "short description keeps photo", desc: strings.Repeat("a", 200), wantPhoto: true},
		{name: "long description sends text", desc: strings.Repeat("a", 1500)},
		{name: "long multibyte description sends text", desc: strings.Repeat("视", 1100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{}
			cfg := testConfig("42")
			cfg.DescriptionLimit = 2000
			n := newWithAPI(api, cfg, discard)

			item := testItem("https://i.ytimg.com/vi/vid1/hq.jpg")
			item.Description = tt.desc
			if err := n.Send(context.Background(), item, "Chan"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(api.sent) != 1 {
				t.Fatalf("expected 1 request, got %d", len(api.sent))
			}

			switch c := api.sent[0].(type) {
			case tgbotapi.PhotoConfig:
				if !tt.wantPhoto {
					t.Fatalf("caption of %d characters sent as photo", len([]rune(c.Caption)))
				}
			case tgbotapi.MessageConfig:
				if tt.wantPhoto {
					t.Fatal("expected photo payload, got text")
				}
				if !strings.Contains(c.Text, tt.desc) {
					t.Error("text message lost the description")
				}
			default:
				t.Fatalf("unexpected payload %T", c)
			}
		})
	}
}

func TestSendError(t *testing.T) {
	api := &mockAPI{err: errors.New("boom")}
	n := newWithAPI(api, testConfig("1"), discard)

	if err := n.Send(context.Background(), testItem(""), "Chan"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestSendCancelled(t *testing.T) {
	api := &mockAPI{}
	n := newWithAPI(api, testConfig("1"), discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, testItem(""), "Chan"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(api.sent) != 0 {
		t.Errorf("expected no requests, got %d", len(api.sent))
	}
}

func TestSendWithoutCredentials(t *testing.T) {
	tests := []struct {
		name    string
		policy  config.CredentialPolicy
		wantErr error
	}{
		{name: "fail policy", policy: config.CredentialsFail, wantErr: ErrNoCredentials},
		{name: "skip policy", policy: config.CredentialsSkip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.OnMissingCredentials = tt.policy
			n := New(cfg, http.DefaultClient, discard)

			if n.Enabled() {
				t.Fatal("notifier without credentials reports enabled")
			}
			err := n.Send(context.Background(), testItem(""), "Chan")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type recordedRequest struct {
	Path   string
	ChatID string
	Text   string
	Photo  string
	Parse  string
}

func newTelegramServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		text := r.PostForm.Get("text")
		if text == "" {
			text = r.PostForm.Get("caption")
		}
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			Path:   r.URL.Path,
			ChatID: r.PostForm.Get("chat_id"),
			Text:   text,
			Photo:  r.PostForm.Get("photo"),
			Parse:  r.PostForm.Get("parse_mode"),
		})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

const okResponse = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":1,"type":"private"}}}`

func TestSendOverHTTP(t *testing.T) {
	srv, reqs := newTelegramServer(t, http.StatusOK, okResponse)
	cfg := testConfig("-100123")
	cfg.Timezone = "UTC"
	n := newWithEndpoint(cfg, srv.Client(), srv.URL+"/bot%s/%s", discard)

	item := testItem("https://i.ytimg.com/vi/vid1/hq.jpg")
	item.Title = "Release v1.2 [beta]"
	if err := n.Send(context.Background(), item, "Gopher_Workshop"); err != nil {
		t.Fatalf("send photo: %v", err)
	}
	if err := n.Send(context.Background(), testItem(""), "Gopher_Workshop"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	want := []recordedRequest{
		{
			Path:   "/bottest-token/sendPhoto",
			ChatID: "-100123",
			Text: "*Channel*: Gopher\\_Workshop\n\n" +
				"[Release v1\\.2 \\[beta\\]](https://www.youtube.com/watch?v=vid1)\n" +
				"*Type*: Video\n" +
				"*Published*: 2025\\-03\\-03 12:00",
			Photo: "https://i.ytimg.com/vi/vid1/hq.jpg",
			Parse: "MarkdownV2",
		},
		{
			Path:   "/bottest-token/sendMessage",
			ChatID: "-100123",
			Text: "*Channel*: Gopher\\_Workshop\n\n" +
				"[Hello](https://www.youtube.com/watch?v=vid1)\n" +
				"*Type*: Video\n" +
				"*Published*: 2025\\-03\\-03 12:00",
			Parse: "MarkdownV2",
		},
	}
	if diff := cmp.Diff(want, *reqs); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestSendOverHTTPFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rejected", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`},
		{name: "server error", status: http.StatusInternalServerError, body: "internal error"},
		{name: "ok false with 200", status: http.StatusOK, body: `{"ok":false,"error_code":403,"description":"Forbidden"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, reqs := newTelegramServer(t, tt.status, tt.body)
			n := newWithEndpoint(testConfig("1"), srv.Client(), srv.URL+"/bot%s/%s", discard)

			if err := n.Send(context.Background(), testItem(""), "Chan"); err == nil {
				t.Fatal("expected error, got nil")
			}
			if len(*reqs) != 1 {
				t.Errorf("expected 1 request, got %d", len(*reqs))
			}
		})
	}
}
