package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.SessionService) {
	t.Helper()
	templates := memory.NewTemplateRepository(memory.NewStaticTemplateLoader(map[string]domain.QuizTemplate{
		"tpl-1": sampleSessionTemplate(),
	}), time.Minute)
	service := app.NewSessionService(memory.NewStore(), templates)
	handler := NewWSHandler(service, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func dialWS(t *testing.T, server *httptest.Server, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// collectUntil reads messages, skipping unrelated types (timer ticks, session
// snapshots arriving out of order), until one matches.
func collectUntil(t *testing.T, conn *websocket.Conn, match func(msgType string, payload map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if msg.Type == "error" {
			t.Fatalf("unexpected error event: %v", msg.Payload)
		}
		if match(msg.Type, msg.Payload) {
			return msg.Payload
		}
	}
	t.Fatal("gave up waiting for matching message")
	return nil
}

func typeIs(want string) func(string, map[string]any) bool {
	return func(msgType string, _ map[string]any) bool { return msgType == want }
}

func sessionWithStatus(want string) func(string, map[string]any) bool {
	return func(msgType string, payload map[string]any) bool {
		return msgType == "session" && payload["status"] == want
	}
}

func TestWebSocketFullRound(t *testing.T) {
	server, service := newTestServer(t)
	session, err := service.Create(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := dialWS(t, server, url.Values{
		"role":      {"host"},
		"sessionId": {session.ID},
	})
	collectUntil(t, host, sessionWithStatus("waiting"))

	player := dialWS(t, server, url.Values{
		"role":   {"player"},
		"pin":    {session.PIN},
		"name":   {"Alice"},
		"fields": {`{"name":"Alice","team":"blue"}`},
	})
	collectUntil(t, player, typeIs("joined"))
	collectUntil(t, host, typeIs("participant"))

	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	collectUntil(t, player, sessionWithStatus("active"))

	if err := player.WriteJSON(map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionIndex":   0,
			"selectedOptions": []int{1},
			"timeTaken":       2.5,
		},
	}); err != nil {
		t.Fatalf("send answer: %v", err)
	}

	result := collectUntil(t, player, typeIs("answerResult"))
	if result["correct"] != true {
		t.Fatalf("expected correct answer, got %v", result)
	}

	collectUntil(t, host, typeIs("answer"))
	leaderboard := collectUntil(t, host, typeIs("leaderboard"))
	if leaderboard == nil {
		t.Fatal("expected leaderboard payload")
	}

	if err := player.WriteJSON(map[string]any{
		"type":    "reaction",
		"payload": map[string]any{"type": "heart"},
	}); err != nil {
		t.Fatalf("send reaction: %v", err)
	}
	reaction := collectUntil(t, host, typeIs("reaction"))
	if reaction["displayMs"] == nil {
		t.Fatalf("reaction payload missing display window: %v", reaction)
	}
}

func TestWebSocketDuplicateAnswerRejected(t *testing.T) {
	server, service := newTestServer(t)
	session, err := service.Create(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := service.Start(context.Background(), session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	player := dialWS(t, server, url.Values{
		"role":      {"player"},
		"sessionId": {session.ID},
		"name":      {"Bob"},
		"fields":    {`{"name":"Bob","team":"red"}`},
	})
	collectUntil(t, player, typeIs("joined"))

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionIndex":   0,
			"selectedOptions": []int{0},
			"timeTaken":       1,
		},
	}
	if err := player.WriteJSON(answer); err != nil {
		t.Fatal(err)
	}
	collectUntil(t, player, typeIs("answerResult"))

	if err := player.WriteJSON(answer); err != nil {
		t.Fatal(err)
	}
	// collectUntil fails fast on error events, so read manually here.
	sawError := false
	for i := 0; i < 10 && !sawError; i++ {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		_ = player.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := player.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if msg.Type == "error" {
			sawError = true
		}
		if msg.Type == "answerResult" {
			t.Fatal("duplicate answer must not be accepted")
		}
	}
	if !sawError {
		t.Fatal("expected error event for duplicate answer")
	}
}

func TestWebSocketRejectsBadRole(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws?role=spectator")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketUnknownPin(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws?role=player&pin=000000&name=Alice")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", resp.StatusCode)
	}
}

func sampleSessionTemplate() domain.QuizTemplate {
	return domain.QuizTemplate{
		ID:    "tpl-1",
		Title: "Team trivia",
		Questions: []domain.Question{
			{
				Text:             "What is 2 + 2?",
				TimeLimitSeconds: 30,
				Kind:             domain.KindSingleChoice,
				Options: []domain.Option{
					{Text: "3"},
					{Text: "4", IsCorrect: true},
					{Text: "5"},
				},
			},
		},
		ParticipantFields: []domain.FieldSpec{
			{Key: "name", Label: "Full Name", Kind: "text", Required: true},
			{Key: "team", Label: "Team", Kind: "text", Required: true},
		},
	}
}
