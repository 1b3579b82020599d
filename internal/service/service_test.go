package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/gptkong/ip-quality-dashboard/internal/database"
	"github.com/gptkong/ip-quality-dashboard/internal/model"
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
	for id, srv := range f.servers {
		recs := f.records[id]
		if len(recs) == 0 {
			continue
		}
		out = append(out, model.ServerWithData{
			ID:     id,
			Remark: srv.Remark,
			Data:   recs[len(recs)-1].Data,
		})
	}
	return out, nil
}

func (f *fakeStore) GetServerWithLatest(_ context.Context, id string) (*model.ServerWithData, error) {
	srv, ok := f.servers[id]
	if !ok || len(f.records[id]) == 0 {
		return nil, database.ErrNotFound
	}
	recs := f.records[id]
	return &model.ServerWithData{ID: id, Remark: srv.Remark, Data: recs[len(recs)-1].Data}, nil
}

func (f *fakeStore) InsertDetectionRecord(_ context.Context, serverID string, data []byte) error {
	f.records[serverID] = append(f.records[serverID], model.DetectionRecord{
		ServerID: serverID,
		Data:     json.RawMessage(data),
	})
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

func TestSubmitDetectionStores(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zap.NewNop())

	sub, err := svc.SubmitDetection(context.Background(), "srv-1", json.RawMessage(validDetection))
	if err != nil {
		t.Fatalf("SubmitDetection() error = %v", err)
	}
	if sub.DualStack {
		t.Error("single report marked dual-stack")
	}
	if _, ok := store.servers["srv-1"]; !ok {
		t.Error("server was not upserted")
	}
	if got := len(store.records["srv-1"]); got != 1 {
		t.Fatalf("records stored = %d, want 1", got)
	}
	if !json.Valid(store.records["srv-1"][0].Data) {
		t.Error("stored payload is not valid JSON")
	}
}

func TestSubmitDetectionRejectsInvalidWithoutWriting(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zap.NewNop())

	_, err := svc.SubmitDetection(context.Background(), "srv-1", json.RawMessage(`{"Head": []}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if len(verr.Details) == 0 {
		t.Error("validation error carries no details")
	}
	if len(store.servers) != 0 || len(store.records) != 0 {
		t.Error("rejected submission wrote to the store")
	}
}

func TestSubmitUnlockRejectsEmptyParse(t *testing.T) {
	store := newFakeStore()
	svc := New(store, zap.NewNop())

	_, err := svc.SubmitUnlock(context.Background(), "srv-1", "just some text\nno platforms here")
	if !errors.Is(err, ErrNoPlatformData) {
		t.Fatalf("error = %v, want ErrNoPlatformData", err)
	}
	if len(store.unlocks) != 0 {
		t.Error("rejected submission wrote to the store")
	}
}

func TestSubmitUnlockStores(t *testing.T) {
	content := "============\n" +
		"IPV4 ASN: AS64496 Example\n" +
		"跨国平台解锁测试\n" +
		"Netflix  YES (Region: US)\n" +
		"Disney+  NO\n" +
		"------------\n" +
		"时间: 2024-06-01 10:00:00\n"

	store := newFakeStore()
	svc := New(store, zap.NewNop())

	result, err := svc.SubmitUnlock(context.Background(), "srv-2", content)
	if err != nil {
		t.Fatalf("SubmitUnlock() error = %v", err)
	}
	if got := len(result.Platforms); got != 2 {
		t.Fatalf("parsed platforms = %d, want 2", got)
	}

	recs := store.unlocks["srv-2"]
	if len(recs) != 1 {
		t.Fatalf("unlock records stored = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.IPv4ASN == nil || *rec.IPv4ASN != "AS64496 Example" {
		t.Errorf("IPv4ASN = %v, want AS64496 Example", rec.IPv4ASN)
	}
	if rec.RawContent == nil || *rec.RawContent != content {
		t.Error("raw content not preserved verbatim")
	}
	if rec.TestTime == nil {
		t.Error("test time not parsed")
	}
}

func TestSubmitUnlockIPv6OnlyContent(t *testing.T) {
	content := "跨国平台解锁测试\n" +
		"IPV6:\n" +
		"Netflix  YES (Region: US)\n" +
		"------------\n"

	store := newFakeStore()
	svc := New(store, zap.NewNop())

	result, err := svc.SubmitUnlock(context.Background(), "srv-3", content)
	if err != nil {
		t.Fatalf("SubmitUnlock() error = %v, want acceptance of IPv6-only content", err)
	}
	if len(result.Platforms) != 0 {
		t.Errorf("IPv4 platforms = %d, want 0", len(result.Platforms))
	}
	if len(result.IPv6Platforms) != 1 {
		t.Fatalf("IPv6 platforms = %d, want 1", len(result.IPv6Platforms))
	}

	recs := store.unlocks["srv-3"]
	if len(recs) != 1 {
		t.Fatalf("unlock records stored = %d, want 1", len(recs))
	}
	if got := len(recs[0].Platforms); got != 1 {
		t.Errorf("stored platform list length = %d, want 1", got)
	}
}

func TestUpdateRemarkUnknownServer(t *testing.T) {
	svc := New(newFakeStore(), zap.NewNop())

	remark := "edge node"
	err := svc.UpdateRemark(context.Background(), "missing", &remark)
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("error = %v, want ErrServerNotFound", err)
	}
}

func TestGetServerUnknown(t *testing.T) {
	svc := New(newFakeStore(), zap.NewNop())

	_, err := svc.GetServer(context.Background(), "missing")
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("error = %v, want ErrServerNotFound", err)
	}
}

func TestParseTestTime(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
	}{
		{"2024-06-01 10:00:00 UTC", true},
		{"2024-06-01 10:00:00", true},
		{"2024-06-01T10:00:00Z", true},
		{"yesterday", false},
		{"", false},
	}
	for _, tt := range tests {
		got := parseTestTime(tt.in)
		if (got != nil) != tt.wantOK {
			t.Errorf("parseTestTime(%q) = %v, want parsed=%v", tt.in, got, tt.wantOK)
		}
	}
}
