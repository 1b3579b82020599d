package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/database"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
	"github.com/gptkong/ip-quality-dashboard/internal/service"
)

type fakeStore struct {
	servers map[string]*model.Server
	records map[string][]model.DetectionRecord
	unlocks map[string][]model.PlatformUnlockRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		servers: make(map[string]*model.Server),
		records: make(map[string][]model.DetectionRecord),
		unlocks: make(map[string][]model.PlatformUnlockRecord),
	}
}

func (f *fakeStore) UpsertServer(_ context.Context, id string) error {
	if _, ok := f.servers[id]; !ok {
		f.servers[id] = &model.Server{ID: id}
	}
	return nil
}

func (f *fakeStore) GetServer(_ context.Context, id string) (*model.Server, error) {
	srv, ok := f.servers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return srv, nil
}

func (f *fakeStore) UpdateRemark(_ context.Context, id string, remark *string) (bool, error) {
	srv, ok := f.servers[id]
	if !ok {
		return false, nil
	}
	srv.Remark = remark
	return true, nil
}

func (f *fakeStore) ListServersWithLatest(_ context.Context) ([]model.ServerWithData, error) {
	var out []model.ServerWithData
	for id := range f.servers {
		recs := f.records[id]
		if len(recs) == 0 {
			continue
		}
		out = append(out, model.ServerWithData{ID: id, Data: recs[len(recs)-1].Data})
	}
	return out, nil
}

func (f *fakeStore) GetServerWithLatest(_ context.Context, id string) (*model.ServerWithData, error) {
	if _, ok := f.servers[id]; !ok || len(f.records[id]) == 0 {
		return nil, database.ErrNotFound
	}
	recs := f.records[id]
	return &model.ServerWithData{ID: id, Data: recs[len(recs)-1].Data}, nil
}

func (f *fakeStore) InsertDetectionRecord(_ context.Context, serverID string, data []byte) error {
	f.records[serverID] = append(f.records[serverID], model.DetectionRecord{ServerID: serverID, Data: data})
	return nil
}

func (f *fakeStore) ListDetectionRecords(_ context.Context, serverID string) ([]model.DetectionRecord, error) {
	return f.records[serverID], nil
}

func (f *fakeStore) InsertPlatformUnlock(_ context.Context, rec model.PlatformUnlockRecord) error {
	f.unlocks[rec.ServerID] = append(f.unlocks[rec.ServerID], rec)
	return nil
}

func (f *fakeStore) LatestPlatformUnlock(_ context.Context, serverID string) (*model.PlatformUnlockRecord, error) {
	recs := f.unlocks[serverID]
	if len(recs) == 0 {
		return nil, database.ErrNotFound
	}
	return &recs[len(recs)-1], nil
}

func (f *fakeStore) PlatformUnlockHistory(_ context.Context, serverID string) ([]model.PlatformUnlockRecord, error) {
	return f.unlocks[serverID], nil
}

type nopAudit struct{}

func (nopAudit) LogAudit(context.Context, model.AuditEntry) error { return nil }

const validDetection = `{
	"Head": [{"IP": "203.0.113.7", "Command": "bash check.sh", "GitHub": "https://github.com/example/check", "Time": "2024-06-01 12:00:00 CST", "Version": "v1.0.0"}],
	"Info": [{
		"ASN": "AS64496", "Organization": "Example Net", "Latitude": "40.7128", "Longitude": "-74.0060",
		"DMS": "40°42'N 74°00'W", "Map": "https://maps.example/...", "TimeZone": "America/New_York",
		"City": {"Name": "New York", "PostalCode": "10001", "SubCode": "NY", "Subdivisions": "New York"},
		"Region": {"Code": "US", "Name": "United States"},
		"Continent": {"Code": "NA", "Name": "North America"},
		"RegisteredRegion": {"Code": "US", "Name": "United States"},
		"Type": "IDC"
	}],
	"Type": [{"Usage": {"IPinfo": "hosting"}, "Company": {"IPinfo": "isp"}}],
	"Score": [{"IPQS": "12"}],
	"Factor": [{
		"CountryCode": {"IPinfo": "US"},
		"Proxy": {"IPQS": false},
		"Tor": {"IPQS": false},
		"VPN": {"IPQS": true},
		"Server": {"IPQS": null},
		"Abuser": {"IPQS": false},
		"Robot": {"IPQS": false}
	}],
	"Media": [{"Netflix": {"Status": "YES", "Region": "US", "Type": "Native"}}],
	"Mail": [{
		"Port25": true, "Gmail": true, "Outlook": true, "Yahoo": null, "Apple": true,
		"QQ": false, "MailRU": false, "AOL": null, "GMX": null, "MailCOM": null,
		"163": false, "Sohu": null, "Sina": null,
		"DNSBlacklist": {"Total": 100, "Clean": 95, "Marked": 3, "Blacklisted": 2}
	}]
}`

func newTestRouter(store *fakeStore) *chi.Mux {
	svc := service.New(store, zap.NewNop())
	serverH := NewServerHandler(svc, nopAudit{}, zap.NewNop())
	unlockH := NewUnlockHandler(svc, nopAudit{}, zap.NewNop())

	r := chi.NewRouter()
	r.Post("/api/servers", serverH.Submit)
	r.Get("/api/servers", serverH.List)
	r.Get("/api/servers/{id}", serverH.Get)
	r.Get("/api/servers/{id}/history", serverH.History)
	r.Post("/api/servers/{id}/platform-unlock", unlockH.Submit)
	r.Get("/api/servers/{id}/platform-unlock", unlockH.Get)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitCreated(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	body := `{"serverId": "srv-1", "data": ` + validDetection + `}`
	rec := doJSON(t, router, http.MethodPost, "/api/servers", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if !resp.Success || resp.ID != "srv-1" {
		t.Errorf("response = %+v", resp)
	}
	if len(store.records["srv-1"]) != 1 {
		t.Error("record was not stored")
	}
}

func TestSubmitMissingServerID(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodPost, "/api/servers", `{"data": {}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "serverId is required") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSubmitMalformedBody(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodPost, "/api/servers", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid JSON body") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSubmitValidationDetails(t *testing.T) {
	store := newFakeStore()
	rec := doJSON(t, newTestRouter(store), http.MethodPost, "/api/servers", `{"serverId": "srv-1", "data": {"Head": []}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.Error != "invalid detection data" || len(resp.Details) == 0 {
		t.Errorf("response = %+v", resp)
	}
	if len(store.records) != 0 {
		t.Error("rejected submission wrote a record")
	}
}

func TestListEmptyArray(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodGet, "/api/servers", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestListExcludesUnlockOnlyServers(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	// Unlock submission creates the server row but no detection record.
	content := "跨国平台解锁测试\\nNetflix  YES (Region: US)\\n---\\n"
	rec := doJSON(t, router, http.MethodPost, "/api/servers/srv-1/platform-unlock", `{"content": "`+content+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unlock status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	if _, ok := store.servers["srv-1"]; !ok {
		t.Fatal("unlock submission did not create the server row")
	}

	list := doJSON(t, router, http.MethodGet, "/api/servers", "")
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", list.Code)
	}
	if got := strings.TrimSpace(list.Body.String()); got != "[]" {
		t.Errorf("list body = %q, want [] for a server without detection records", got)
	}
}

func TestResubmitListShowsNewestHistoryKeepsBoth(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	second := strings.Replace(validDetection, "AS64496", "AS64999", 1)
	for _, data := range []string{validDetection, second} {
		rec := doJSON(t, router, http.MethodPost, "/api/servers", `{"serverId": "srv-1", "data": `+data+`}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit status = %d, want 201; body: %s", rec.Code, rec.Body.String())
		}
	}

	list := doJSON(t, router, http.MethodGet, "/api/servers", "")
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", list.Code)
	}
	var servers []model.ServerWithData
	if err := json.Unmarshal(list.Body.Bytes(), &servers); err != nil {
		t.Fatalf("list decode: %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("list length = %d, want 1", len(servers))
	}
	if !strings.Contains(string(servers[0].Data), "AS64999") {
		t.Error("list payload is not the newest record")
	}
	if strings.Contains(string(servers[0].Data), "AS64496") {
		t.Error("list payload still carries the older record")
	}

	hist := doJSON(t, router, http.MethodGet, "/api/servers/srv-1/history", "")
	if hist.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", hist.Code)
	}
	var records []model.DetectionRecord
	if err := json.Unmarshal(hist.Body.Bytes(), &records); err != nil {
		t.Fatalf("history decode: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("history length = %d, want 2", len(records))
	}
}

func TestHistoryUnknownServer(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodGet, "/api/servers/nope/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetUnknownServer(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodGet, "/api/servers/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUnlockSubmitNoPlatforms(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodPost,
		"/api/servers/srv-1/platform-unlock", `{"content": "nothing useful here"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no platform data") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUnlockSubmitAndFetch(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	content := "跨国平台解锁测试\\nNetflix  YES (Region: US)\\nYouTube  YES\\n---\\n"
	rec := doJSON(t, router, http.MethodPost, "/api/servers/srv-1/platform-unlock", `{"content": "`+content+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PlatformCount int `json:"platformCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if resp.PlatformCount != 2 {
		t.Errorf("platformCount = %d, want 2", resp.PlatformCount)
	}

	get := doJSON(t, router, http.MethodGet, "/api/servers/srv-1/platform-unlock", "")
	if get.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", get.Code)
	}

	hist := doJSON(t, router, http.MethodGet, "/api/servers/srv-1/platform-unlock?history=true", "")
	if hist.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", hist.Code)
	}
}

func TestUnlockGetMissing(t *testing.T) {
	rec := doJSON(t, newTestRouter(newFakeStore()), http.MethodGet, "/api/servers/srv-1/platform-unlock", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRequireToken(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("open when unset", func(t *testing.T) {
		h := RequireToken("")(inner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		h := RequireToken("secret")(inner)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("rejects missing header", func(t *testing.T) {
		h := RequireToken("secret")(inner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("accepts matching token", func(t *testing.T) {
		h := RequireToken("secret")(inner)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})
}
