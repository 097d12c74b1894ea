package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"classline/internal/config"
	"classline/internal/db"
	"classline/internal/engine"
	"classline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 9, 3, 8, 0, 0, 0, time.UTC) }

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, Logger: zerolog.Nop()},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, ts *testServer, method, path string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthRequiresNoAuth(t *testing.T) {
	ts := newTestServer(t)
	res, _ := doJSON(t, ts, http.MethodGet, "/v1/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", res.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	res, _ := doJSON(t, ts, http.MethodGet, "/v1/templates", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
}

func TestCheckInstructionalDay(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "tester")

	// 2024-09-07 is a Saturday.
	res, body := doJSON(t, ts, http.MethodGet, "/v1/calendar/2024-09-07", nil, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, body)
	}
	var out struct {
		IsInstructionalDay bool   `json:"is_instructional_day"`
		Reason             string `json:"reason"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.IsInstructionalDay || out.Reason != "Weekend" {
		t.Fatalf("unexpected response: %s", body)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "tester")
	ctx := context.Background()

	staff, err := ts.Engine.AddStaff(ctx, "Ms. Rivera", "", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts.Engine.AddStudent(ctx, "Jordan Lee", "", "", nil, "tester"); err != nil {
		t.Fatal(err)
	}

	res, body := doJSON(t, ts, http.MethodPost, "/v1/templates", map[string]any{
		"task_name": "Take classroom attendance",
		"category":  "Administrative",
		"frequency": "daily",
		"staff_id":  staff.ID,
	}, token)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add template status = %d: %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts, http.MethodPost, "/v1/generate", map[string]any{"date": "2024-09-03"}, token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate status = %d: %s", res.StatusCode, body)
	}
	var gen engine.GenerationResult
	if err := json.Unmarshal(body, &gen); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !gen.IsInstructionalDay || len(gen.Created) != 1 {
		t.Fatalf("unexpected generation result: %s", body)
	}
}

func TestUnknownTaskIs404(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, "tester")
	res, body := doJSON(t, ts, http.MethodPost, "/v1/tasks/nope/complete", map[string]any{}, token)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d: %s", res.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}
