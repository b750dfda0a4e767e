package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"grader/models"
	"grader/pkg/answerkey"
	"grader/pkg/extract"
	"grader/pkg/ocr"
	"grader/pkg/pipeline"
	"grader/pkg/preprocess"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
)

var testSecret = []byte("test-secret")

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// newTestServer builds a server without a database whose recognizer always
// returns dets.
func newTestServer(t *testing.T, keyCompact string, dets ...ocr.Detection) (*gin.Engine, *server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	k, err := answerkey.Parse(keyCompact)
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(dir, "answer_key.txt")
	if err := answerkey.Save(keyPath, k); err != nil {
		t.Fatal(err)
	}
	store, err := answerkey.Open(keyPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	rec := ocr.RecognizerFunc(func(context.Context, image.Image, ocr.Params) ([]ocr.Detection, error) {
		return dets, nil
	})
	p := pipeline.New(preprocess.New(preprocess.DefaultOptions()), extract.New(rec, ocr.DefaultParams()), store)
	s := newServer(nil, testSecret, p, filepath.Join(dir, "uploads"))
	r := gin.New()
	s.setupRoutes(r)
	return r, s
}

func token(t *testing.T, username, role string) string {
	t.Helper()
	tok, err := issueToken(testSecret, username, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func sheetUpload(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	if content == nil {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, imaging.New(30, 20, color.White), imaging.PNG); err != nil {
			t.Fatal(err)
		}
		content = buf.Bytes()
	}
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	w, _ := mw.CreateFormFile("file", name)
	_, _ = w.Write(content)
	_ = mw.Close()
	return body, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestUnauthorized(t *testing.T) {
	r, _ := newTestServer(t, "BEC")
	if resp := performRequest(r, http.MethodGet, "/key", nil, "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	bad, _ := issueToken([]byte("other"), "mallory", models.RoleAdministrator)
	if resp := performRequest(r, http.MethodGet, "/key", nil, bad, ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature got %d", resp.Code)
	}
}

func TestSheetFlow(t *testing.T) {
	r, _ := newTestServer(t, "BEC", ocr.Detection{Text: "1.B"}, ocr.Detection{Text: "2A"}, ocr.Detection{Text: "15C"})
	tok := token(t, "alice", models.RoleUser)

	body, ct := sheetUpload(t, "sheet.png", nil)
	resp := performRequest(r, http.MethodPost, "/sheets", body, tok, ct)
	if resp.Code != http.StatusOK {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var up struct {
		SessionID        string            `json:"session_id"`
		Questions        []int             `json:"questions"`
		Proposal         map[string]string `json:"proposal"`
		RecognitionError *string           `json:"recognition_error"`
	}
	decode(t, resp, &up)
	if up.SessionID == "" || len(up.Questions) != 3 || up.RecognitionError != nil {
		t.Fatalf("unexpected upload response %s", resp.Body.String())
	}
	if up.Proposal["1"] != "B" || up.Proposal["2"] != "A" || up.Proposal["3"] != "" {
		t.Fatalf("unexpected proposal %v", up.Proposal)
	}

	// Another user cannot confirm alice's sheet.
	confirm, _ := json.Marshal(map[string]any{"answers": map[string]string{"1": "B", "2": "e", "3": "C"}})
	resp = performRequest(r, http.MethodPost, "/sheets/"+up.SessionID+"/confirm", bytes.NewReader(confirm), token(t, "bob", models.RoleUser), "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign session got %d", resp.Code)
	}

	resp = performRequest(r, http.MethodPost, "/sheets/"+up.SessionID+"/confirm", bytes.NewReader(confirm), tok, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("confirm failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var graded struct {
		Score  string `json:"score"`
		Result struct {
			CorrectCount int `json:"correct_count"`
			Records      []struct {
				Question      int    `json:"question"`
				StudentAnswer string `json:"student_answer"`
				Correct       bool   `json:"correct"`
			} `json:"records"`
		} `json:"result"`
	}
	decode(t, resp, &graded)
	if graded.Score != "3/3 (100.0%)" || graded.Result.CorrectCount != 3 || graded.Result.Records[1].StudentAnswer != "E" {
		t.Fatalf("unexpected grade %s", resp.Body.String())
	}

	// Sessions are single use.
	resp = performRequest(r, http.MethodPost, "/sheets/"+up.SessionID+"/confirm", bytes.NewReader(confirm), tok, "application/json")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for used session got %d", resp.Code)
	}
}

func TestConfirmRejectsAnswerThatIsNotALetter(t *testing.T) {
	r, _ := newTestServer(t, "BEC", ocr.Detection{Text: "1B"})
	tok := token(t, "alice", models.RoleUser)
	body, ct := sheetUpload(t, "sheet.png", nil)
	resp := performRequest(r, http.MethodPost, "/sheets", body, tok, ct)
	var up struct {
		SessionID string `json:"session_id"`
	}
	decode(t, resp, &up)

	bad, _ := json.Marshal(map[string]any{"answers": map[string]string{"1": "B", "2": "NOT ANSWERED BY STUDENT"}})
	resp = performRequest(r, http.MethodPost, "/sheets/"+up.SessionID+"/confirm", bytes.NewReader(bad), tok, "application/json")
	var verr struct {
		Question int `json:"question"`
	}
	decode(t, resp, &verr)
	if resp.Code != http.StatusBadRequest || verr.Question != 2 {
		t.Fatalf("expected 400 naming question 2 got %d %s", resp.Code, resp.Body.String())
	}

	// The session survives a rejected confirmation.
	good, _ := json.Marshal(map[string]any{"answers": map[string]string{"1": "b", "2": " ", "3": "C"}})
	resp = performRequest(r, http.MethodPost, "/sheets/"+up.SessionID+"/confirm", bytes.NewReader(good), tok, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("confirm after correction failed %d %s", resp.Code, resp.Body.String())
	}
}

func TestUploadRejectsUndecodableImage(t *testing.T) {
	r, s := newTestServer(t, "BEC")
	body, ct := sheetUpload(t, "sheet.png", []byte("not an image"))
	resp := performRequest(r, http.MethodPost, "/sheets", body, token(t, "alice", models.RoleUser), ct)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d body=%s", resp.Code, resp.Body.String())
	}
	entries, _ := os.ReadDir(filepath.Join(s.uploadBase, "alice"))
	if len(entries) != 0 {
		t.Fatalf("rejected upload left behind: %v", entries)
	}
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	r, _ := newTestServer(t, "BEC")
	body, ct := sheetUpload(t, "sheet.txt", []byte("x"))
	resp := performRequest(r, http.MethodPost, "/sheets", body, token(t, "alice", models.RoleUser), ct)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestKeyEndpoints(t *testing.T) {
	r, s := newTestServer(t, "BEC")
	user := token(t, "alice", models.RoleUser)
	admin := token(t, "admin", models.RoleAdministrator)

	resp := performRequest(r, http.MethodGet, "/key", nil, user, "")
	var key struct {
		Questions int               `json:"questions"`
		Answers   map[string]string `json:"answers"`
	}
	decode(t, resp, &key)
	if key.Questions != 3 || key.Answers["2"] != "E" {
		t.Fatalf("unexpected key %s", resp.Body.String())
	}

	if resp := performRequest(r, http.MethodPost, "/key/questions", nil, user, ""); resp.Code != http.StatusForbidden {
		t.Fatalf("non-admin edit expected 403 got %d", resp.Code)
	}
	if resp := performRequest(r, http.MethodPost, "/key/questions", nil, admin, ""); resp.Code != http.StatusOK {
		t.Fatalf("add failed %d %s", resp.Code, resp.Body.String())
	}
	if s.store.Key().String() != "BECA" {
		t.Fatalf("add not applied: %q", s.store.Key().String())
	}
	if resp := performRequest(r, http.MethodDelete, "/key/questions/last", nil, admin, ""); resp.Code != http.StatusOK {
		t.Fatalf("remove failed %d %s", resp.Code, resp.Body.String())
	}

	bad, _ := json.Marshal(map[string]any{"answers": map[string]string{"1": "A", "2": "1ABC", "3": "C"}})
	resp = performRequest(r, http.MethodPut, "/key", bytes.NewReader(bad), admin, "application/json")
	var verr struct {
		Question int `json:"question"`
	}
	decode(t, resp, &verr)
	if resp.Code != http.StatusBadRequest || verr.Question != 2 {
		t.Fatalf("expected 400 naming question 2 got %d %s", resp.Code, resp.Body.String())
	}
	if s.store.Key().String() != "BEC" {
		t.Fatalf("rejected update changed key: %q", s.store.Key().String())
	}

	good, _ := json.Marshal(map[string]any{"answers": map[string]string{"1": "d", "2": "apple"}})
	resp = performRequest(r, http.MethodPut, "/key", bytes.NewReader(good), admin, "application/json")
	if resp.Code != http.StatusOK || s.store.Key().String() != "DA" {
		t.Fatalf("update failed %d %s key=%q", resp.Code, resp.Body.String(), s.store.Key().String())
	}
}

func TestRemoveLastQuestionRefused(t *testing.T) {
	r, _ := newTestServer(t, "B")
	resp := performRequest(r, http.MethodDelete, "/key/questions/last", nil, token(t, "admin", models.RoleAdministrator), "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestEndpointsWithoutDatabase(t *testing.T) {
	r, _ := newTestServer(t, "BEC")
	login, _ := json.Marshal(map[string]string{"username": "a", "password": "secret1"})
	if resp := performRequest(r, http.MethodPost, "/login", bytes.NewReader(login), "", "application/json"); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if resp := performRequest(r, http.MethodGet, "/results", nil, token(t, "alice", models.RoleUser), ""); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestSessionExpiry(t *testing.T) {
	st := newSessionStore(time.Minute)
	now := time.Unix(1000, 0)
	st.now = func() time.Time { return now }
	id := st.put(&session{username: "alice"})
	now = now.Add(2 * time.Minute)
	if _, ok := st.take(id, "alice"); ok {
		t.Fatalf("expired session still available")
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("../al ice"); got != "___al_ice" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeName(""); got != "_" {
		t.Fatalf("got %q", got)
	}
}
