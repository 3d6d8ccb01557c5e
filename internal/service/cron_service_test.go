package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/comdex/comdexapi/internal/config"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
)

type fakeSnapshots struct {
	mu     sync.Mutex
	rows   map[int64]models.IndexSnapshotModel
	events []models.IndexStatusEventModel
}

func (f *fakeSnapshots) GetSnapshots(ctx context.Context) (map[int64]models.IndexSnapshotModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]models.IndexSnapshotModel, len(f.rows))
	for k, v := range f.rows {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSnapshots) UpsertSnapshots(ctx context.Context, rows []models.IndexSnapshotModel) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		f.rows[r.IndexID] = r
	}
	return int64(len(rows)), nil
}

func (f *fakeSnapshots) RecordStatusEvent(ctx context.Context, ev *models.IndexStatusEventModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeSnapshots) RecentStatusEvents(ctx context.Context, indexID int64, limit int) ([]models.IndexStatusEventModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IndexStatusEventModel
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if indexID == 0 || f.events[i].IndexID == indexID {
			out = append(out, f.events[i])
		}
	}
	return out, nil
}

type fakeTimes struct {
	mu    sync.Mutex
	times map[string]time.Time
}

func (f *fakeTimes) SetTime(ctx context.Context, key string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times[key] = t
	return nil
}

func TestSyncIndexStatus(t *testing.T) {
	gw := newFakeGateway()
	gw.indexes[1] = models.Index{ID: 1, Name: "Green Energy", Status: lifecycle.StatusVoting, Companies: []models.Company{{ID: 4}, {ID: 5}}}
	gw.indexes[2] = models.Index{ID: 2, Name: "Tech Leaders", Status: lifecycle.StatusExecuted}
	gw.indexes[3] = models.Index{ID: 3, Name: "Fresh", Status: lifecycle.StatusActive}

	snaps := &fakeSnapshots{rows: map[int64]models.IndexSnapshotModel{
		1: {IndexID: 1, Status: "draft"},
		2: {IndexID: 2, Status: "draft"},
	}}
	times := &fakeTimes{times: map[string]time.Time{}}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cfg := &config.Config{SyncUsername: "sync", SyncPassword: "pw"}
	cs := NewCronService(cfg, gw, snaps, times, NewSessionService(gw, newFakeSessionStore(), time.Hour), lifecycle.Strict)
	cs.now = func() time.Time { return now }

	res, err := cs.SyncIndexStatus(context.Background())
	if err != nil {
		t.Fatalf("SyncIndexStatus: %v", err)
	}
	if res != (SyncResult{Indexes: 3, Changes: 2, Disallowed: 1, Upserted: 3}) {
		t.Fatalf("result=%+v", res)
	}
	if len(snaps.events) != 2 {
		t.Fatalf("events=%+v", snaps.events)
	}
	if ev := snaps.events[0]; ev.IndexID != 1 || !ev.Allowed || ev.FromStatus != "draft" || ev.ToStatus != "voting" || ev.Policy != "strict" {
		t.Fatalf("event[0]=%+v", ev)
	}
	if ev := snaps.events[1]; ev.IndexID != 2 || ev.Allowed {
		t.Fatalf("event[1]=%+v want disallowed draft -> executed", ev)
	}

	var ids []int64
	if err := json.Unmarshal(snaps.rows[1].CompanyIDs, &ids); err != nil || len(ids) != 2 || ids[0] != 4 {
		t.Fatalf("company ids=%s err=%v", snaps.rows[1].CompanyIDs, err)
	}
	if !times.times[StatusSyncLastRunKey].Equal(now) {
		t.Fatalf("last run=%v", times.times[StatusSyncLastRunKey])
	}

	// nothing changed since: no events, and the service session is reused
	res, err = cs.SyncIndexStatus(context.Background())
	if err != nil {
		t.Fatalf("second SyncIndexStatus: %v", err)
	}
	if res.Changes != 0 || len(snaps.events) != 2 {
		t.Fatalf("result=%+v events=%d", res, len(snaps.events))
	}
	if gw.count("Login") != 1 {
		t.Fatalf("login calls=%d want=1", gw.count("Login"))
	}
}

func TestRunJob_Unknown(t *testing.T) {
	gw := newFakeGateway()
	cs := NewCronService(&config.Config{}, gw, &fakeSnapshots{}, &fakeTimes{}, NewSessionService(gw, newFakeSessionStore(), time.Hour), lifecycle.Strict)

	if err := cs.RunJob("ticker_start"); err != ErrUnknownJob {
		t.Fatalf("err=%v want=ErrUnknownJob", err)
	}
}

func TestStreamBroadcast_FiltersByIndex(t *testing.T) {
	s := NewStreamService(nil, &fakeSnapshots{})
	all := &StreamClient{ID: "all", Channel: make(chan []byte, 1)}
	one := &StreamClient{ID: "one", IndexID: 1, Channel: make(chan []byte, 1)}
	two := &StreamClient{ID: "two", IndexID: 2, Channel: make(chan []byte, 1)}
	slow := &StreamClient{ID: "slow", Channel: make(chan []byte)}
	for _, c := range []*StreamClient{all, one, two, slow} {
		s.addClient(c)
	}

	payload, _ := json.Marshal(models.IndexStatusEventModel{IndexID: 1, FromStatus: "voting", ToStatus: "active"})
	s.broadcast(payload)
	s.broadcast([]byte("not json"))

	for _, c := range []*StreamClient{all, one} {
		select {
		case msg := <-c.Channel:
			if !strings.HasPrefix(string(msg), "event: index_status\ndata: {") {
				t.Fatalf("client %s got %q", c.ID, msg)
			}
		default:
			t.Fatalf("client %s got nothing", c.ID)
		}
	}
	select {
	case msg := <-two.Channel:
		t.Fatalf("client two got %q for another index", msg)
	default:
	}

	s.removeClient("one")
	if len(s.clients) != 3 {
		t.Fatalf("clients=%d want=3", len(s.clients))
	}
}

func TestStreamRecent_ClampsLimit(t *testing.T) {
	snaps := &fakeSnapshots{}
	for i := 0; i < 60; i++ {
		snaps.events = append(snaps.events, models.IndexStatusEventModel{IndexID: int64(i%2 + 1)})
	}
	s := NewStreamService(nil, snaps)

	events, err := s.Recent(context.Background(), 0, 10000)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 50 {
		t.Fatalf("events=%d want=50", len(events))
	}
	events, _ = s.Recent(context.Background(), 2, 5)
	if len(events) != 5 || events[0].IndexID != 2 {
		t.Fatalf("events=%+v", events)
	}
}
