package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-telegram/bot"

	"github.com/louisbranch/docwatch/internal/services/documents/delivery"
)

func TestNewSenderRequiresToken(t *testing.T) {
	if _, err := NewSender("  "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("err = %v, want token required", err)
	}
}

func TestSendPostsMessage(t *testing.T) {
	var chatID, text, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		chatID = r.FormValue("chat_id")
		text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":99,"type":"private"}}}`))
	}))
	defer srv.Close()

	sender, err := NewSender("abc:123", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if err := sender.Send(context.Background(), 99, "Visa expires soon"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botabc:123/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if chatID != "99" || text != "Visa expires soon" {
		t.Fatalf("request chat_id = %q text = %q", chatID, text)
	}
}

func TestNewSenderDoesNotCallAPI(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewSender("abc:123", WithBaseURL(srv.URL)); err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if calls != 0 {
		t.Fatalf("api calls during construction = %d, want 0", calls)
	}
}

func TestSendClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{name: "blocked", status: http.StatusForbidden, body: `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, permanent: true},
		{name: "bad chat", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"ok":false,"error_code":429,"description":"Too Many Requests"}`},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`},
		{name: "not ok", status: http.StatusOK, body: `{"ok":false}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			sender, err := NewSender("token", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("new sender: %v", err)
			}
			err = sender.Send(context.Background(), 1, "text")
			if err == nil {
				t.Fatal("expected error")
			}
			if delivery.IsPermanent(err) != tc.permanent {
				t.Fatalf("permanent = %v, want %v (%v)", delivery.IsPermanent(err), tc.permanent, err)
			}
		})
	}
}

func TestSendRedactsTokenFromTransportErrors(t *testing.T) {
	sender, err := NewSender("secret-token", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	err = sender.Send(context.Background(), 1, "text")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestRedactTokenKeepsErrorKind(t *testing.T) {
	err := redactToken(fmt.Errorf("%w, https://api.telegram.org/botsecret-token/sendMessage", bot.ErrorForbidden), "secret-token")
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks token: %v", err)
	}
	if !errors.Is(err, bot.ErrorForbidden) {
		t.Fatalf("redacted error lost its kind: %v", err)
	}
	if plain := errors.New("timeout"); redactToken(plain, "secret-token") != plain {
		t.Fatal("errors without the token should pass through")
	}
}
