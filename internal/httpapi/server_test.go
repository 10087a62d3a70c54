package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"techcharades/internal/domain"
	"techcharades/internal/engine"
	"techcharades/internal/letters"
	"techcharades/internal/results"
	"techcharades/internal/review"
)

const testAdminToken = "sesame"

type acceptAll struct{}

func (acceptAll) Classify(_ context.Context, term string) domain.Verification {
	if term == "" {
		return domain.VerifyUnset
	}
	return domain.VerifyAccepted
}

func newTestServer(t *testing.T) (*httptest.Server, results.Repository) {
	t.Helper()
	repo := results.NewMemoryRepository()
	games := engine.NewManager(engine.Config{Duration: 2 * time.Second, MaxRounds: 2}, letters.NewSource("A"), acceptAll{}, repo)
	t.Cleanup(games.Close)
	store := review.NewStore(repo)
	srv := New(games, repo, store, review.NewMatcher(repo, store), nil, testAdminToken)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, repo
}

func doJSON(t *testing.T, method, url string, body any, admin bool) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Token", testAdminToken)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer res.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(res.Body)
	return res, out.Bytes()
}

func TestSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"name": "kim", "studentId": "2024-01"}, false)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", res.StatusCode, body)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.SessionID == "" || snap.State != engine.StateIdle {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/start", nil, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, body %s", res.StatusCode, body)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode start snapshot: %v", err)
	}
	if snap.State != engine.StatePlaying || snap.Letter == "" {
		t.Fatalf("start snapshot: %+v", snap)
	}

	// Wrong-letter submission: rejected with the error flag, round intact.
	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/submit", map[string]string{"text": "banana"}, false)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid submit status = %d, body %s", res.StatusCode, body)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode rejected snapshot: %v", err)
	}
	if !snap.InputError || snap.Round != 1 {
		t.Fatalf("rejected snapshot: %+v", snap)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/submit", map[string]string{"text": "Apache"}, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("valid submit status = %d, body %s", res.StatusCode, body)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode submit snapshot: %v", err)
	}
	if snap.Round != 2 || len(snap.Rounds) != 1 {
		t.Fatalf("submit snapshot: %+v", snap)
	}
}

func TestSubmitOutsidePlayConflicts(t *testing.T) {
	ts, _ := newTestServer(t)

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"name": "kim"}, false)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", res.StatusCode)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}

	// Never started: the session is Idle, not broken.
	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/submit", map[string]string{"text": "Apache"}, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("idle submit status = %d, body %s, want 409", res.StatusCode, body)
	}

	// Play the two rounds out, then submit once more after game over.
	if res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/start", nil, false); res.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", res.StatusCode)
	}
	for i := 0; i < 2; i++ {
		res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/submit", map[string]string{"text": "Apache"}, false)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("submit %d status = %d, body %s", i+1, res.StatusCode, body)
		}
	}
	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+snap.SessionID+"/submit", map[string]string{"text": "Apache"}, false)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("game-over submit status = %d, body %s, want 409", res.StatusCode, body)
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/ghost/submit", map[string]string{"text": "Apache"}, false)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session submit status = %d, want 404", res.StatusCode)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"name": "  "}, false)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/ghost", nil, false)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestAdminRequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)
	res, _ := doJSON(t, http.MethodGet, ts.URL+"/api/admin/results", nil, false)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodGet, ts.URL+"/api/admin/results", nil, true)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", res.StatusCode)
	}
}

func TestAdminVerifyAndBatch(t *testing.T) {
	ts, repo := newTestServer(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.ResultRecord{
		Participant: domain.Participant{Name: "kim"},
		AutoScore:   50,
		Rounds: []domain.RoundRecord{
			{Round: 1, Letter: "A", SubmittedTerm: "apex", Points: 20},
			{Round: 2, Letter: "D", SubmittedTerm: "dremio", Points: 30},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, body := doJSON(t, http.MethodPost, ts.URL+"/api/admin/results/"+id+"/verify",
		map[string]any{"round": 1, "decision": "accepted"}, true)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", res.StatusCode, body)
	}
	var rec domain.ResultRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.VerifiedScore == nil || *rec.VerifiedScore != 20 {
		t.Fatalf("verified score = %v, want 20", rec.VerifiedScore)
	}

	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/admin/results/"+id+"/verify",
		map[string]any{"round": 1, "decision": "maybe"}, true)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad decision status = %d, want 400", res.StatusCode)
	}
	res, _ = doJSON(t, http.MethodPost, ts.URL+"/api/admin/results/ghost/verify",
		map[string]any{"round": 1, "decision": "accepted"}, true)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing record status = %d, want 404", res.StatusCode)
	}

	res, body = doJSON(t, http.MethodPost, ts.URL+"/api/admin/batch-verify",
		map[string]string{"terms": "dremio"}, true)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("batch status = %d, body %s", res.StatusCode, body)
	}
	var report batchVerifyRes
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Scanned != 1 || report.Updated != 1 {
		t.Fatalf("report = %+v", report)
	}

	stored, _ := repo.Get(ctx, id)
	if stored.VerifiedScore == nil || *stored.VerifiedScore != 50 {
		t.Fatalf("final verified score = %v, want 50", stored.VerifiedScore)
	}
}

func TestAdminTermsExport(t *testing.T) {
	ts, repo := newTestServer(t)
	_, err := repo.Create(context.Background(), &domain.ResultRecord{
		Participant: domain.Participant{Name: "kim"},
		Rounds: []domain.RoundRecord{
			{Round: 1, SubmittedTerm: "pending one"},
			{Round: 2, SubmittedTerm: "ok", Verification: domain.VerifyAccepted},
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, body := doJSON(t, http.MethodGet, ts.URL+"/api/admin/terms/export", nil, true)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", res.StatusCode)
	}
	var out struct {
		Terms []string `json:"terms"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(out.Terms) != 1 || out.Terms[0] != "PENDING ONE" {
		t.Fatalf("export = %v", out.Terms)
	}
}

func TestLeaderboardWithoutRedis(t *testing.T) {
	ts, _ := newTestServer(t)
	res, body := doJSON(t, http.MethodGet, ts.URL+"/api/leaderboard", nil, false)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if string(bytes.TrimSpace(body)) != "[]" {
		t.Fatalf("body = %s, want empty list", body)
	}
}
