package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marginalia/api/internal/auth"
	"marginalia/api/internal/store"
)

func newTestServer(t *testing.T, fake *fakeStore) *httptest.Server {
	t.Helper()
	svc := newTestService(fake)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func issueTestToken(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testConfig().JWTSecret), auth.Claims{
		Sub:  userID,
		Name: name,
		JTI:  "jti-" + userID,
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestReadyEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/ready", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ready" {
		t.Fatalf("body = %v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/nonsense", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("body = %v", body)
	}
}

func TestVoteEndpointRequiresLogin(t *testing.T) {
	fake := newFakeStore()
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", nil)
	server := newTestServer(t, fake)

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/annotations/ann_1/vote", "", `{"direction":"like"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["code"] != "LOGIN_REQUIRED" {
		t.Fatalf("code = %v, want LOGIN_REQUIRED", body["code"])
	}
}

func TestVoteEndpointFlow(t *testing.T) {
	fake := newFakeStore()
	fake.users["bob"] = store.User{ID: "bob", DisplayName: "Bob"}
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", []string{"topic"})
	server := newTestServer(t, fake)
	token := issueTestToken(t, "bob", "Bob")

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/annotations/ann_1/vote", token, `{"direction":"like"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	state := body["votes"].(map[string]any)
	if state["likes"].(float64) != 1 || state["viewerVote"] != "like" {
		t.Fatalf("votes = %v", state)
	}

	// Voting again toggles the vote off.
	resp, body = doRequest(t, http.MethodPost, server.URL+"/api/annotations/ann_1/vote", token, `{"direction":"like"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	state = body["votes"].(map[string]any)
	if state["likes"].(float64) != 0 || state["viewerVote"] != "none" {
		t.Fatalf("after toggle: %v", state)
	}
}

func TestVoteEndpointInvalidDirection(t *testing.T) {
	fake := newFakeStore()
	fake.users["bob"] = store.User{ID: "bob", DisplayName: "Bob"}
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", nil)
	server := newTestServer(t, fake)
	token := issueTestToken(t, "bob", "Bob")

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/annotations/ann_1/vote", token, `{"direction":"sideways"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if body["code"] != "INVALID_DIRECTION" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestAnnotationsEndpointAnonymousList(t *testing.T) {
	fake := newFakeStore()
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", []string{"topic", "vote:like:bob:1700000000"})
	server := newTestServer(t, fake)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/annotations?uri="+"https%3A%2F%2Fexample.com%2Fa", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	items := body["annotations"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %v", items)
	}
	item := items[0].(map[string]any)
	state := item["votes"].(map[string]any)
	if state["likes"].(float64) != 1 || state["viewerVote"] != "none" {
		t.Fatalf("votes = %v", state)
	}
	tags := item["tags"].([]any)
	if len(tags) != 1 || tags[0] != "topic" {
		t.Fatalf("vote marker leaked: %v", tags)
	}
	actions := item["actions"].(map[string]any)
	if actions["canEdit"] != false || actions["canFlag"] != false {
		t.Fatalf("anonymous actions = %v", actions)
	}
}

func TestAnnotationsEndpointMissingURI(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/annotations", "", "")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if body["code"] != "VALIDATION" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestCreateAnnotationEndpoint(t *testing.T) {
	fake := newFakeStore()
	fake.users["bob"] = store.User{ID: "bob", DisplayName: "Bob"}
	server := newTestServer(t, fake)
	token := issueTestToken(t, "bob", "Bob")

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/annotations", token,
		`{"uri":"https://example.com/a","text":"a note","tags":["topic"]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["userId"] != "bob" {
		t.Fatalf("userId = %v", body["userId"])
	}

	// Reserved namespace is rejected.
	resp, body = doRequest(t, http.MethodPost, server.URL+"/api/annotations", token,
		`{"uri":"https://example.com/a","text":"a note","tags":["vote:like"]}`)
	if resp.StatusCode != http.StatusUnprocessableEntity || body["code"] != "RESERVED_TAG" {
		t.Fatalf("status = %d, code = %v", resp.StatusCode, body["code"])
	}
}

func TestDeleteAnnotationEndpointForbidden(t *testing.T) {
	fake := newFakeStore()
	fake.users["mallory"] = store.User{ID: "mallory", DisplayName: "Mallory"}
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", nil)
	server := newTestServer(t, fake)
	token := issueTestToken(t, "mallory", "Mallory")

	resp, body := doRequest(t, http.MethodDelete, server.URL+"/api/annotations/ann_1", token, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestSessionEndpointAnonymous(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/session", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["authenticated"] != false {
		t.Fatalf("body = %v", body)
	}
}

func TestSessionEndpointAuthenticated(t *testing.T) {
	fake := newFakeStore()
	fake.users["bob"] = store.User{ID: "bob", DisplayName: "Bob"}
	server := newTestServer(t, fake)
	token := issueTestToken(t, "bob", "Bob")

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/session", token, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["authenticated"] != true || body["userName"] != "Bob" {
		t.Fatalf("body = %v", body)
	}
}

func TestSessionEndpointReportsFeatures(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/session", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	features, ok := body["features"].(map[string]any)
	if !ok {
		t.Fatalf("features missing from session payload: %v", body)
	}
	if features["flagging"] != true || features["sharing"] != true {
		t.Fatalf("features = %v", features)
	}
	if features["displayNames"] != true || features["atMentions"] != false {
		t.Fatalf("features = %v", features)
	}
}

func TestAnnotationHistoryEndpoint(t *testing.T) {
	fake := newFakeStore()
	fake.users["alice"] = store.User{ID: "alice", DisplayName: "Alice"}
	fake.users["mallory"] = store.User{ID: "mallory", DisplayName: "Mallory"}
	seedAnnotation(fake, "ann_1", "alice", "https://example.com/a", nil)
	server := newTestServer(t, fake)

	resp, body := doRequest(t, http.MethodGet, server.URL+"/api/annotations/ann_1/history",
		issueTestToken(t, "mallory", "Mallory"), "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-editor status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = doRequest(t, http.MethodGet, server.URL+"/api/annotations/ann_1/history",
		issueTestToken(t, "alice", "Alice"), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["annotationId"] != "ann_1" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["entries"].([]any); !ok {
		t.Fatalf("entries missing: %v", body)
	}
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	resp, _ := doRequest(t, http.MethodGet, server.URL+"/api/health", "", "")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
}
