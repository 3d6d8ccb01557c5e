// Package service contains the service layer for the Comdex API
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/comdex/comdexapi/internal/config"
	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/lifecycle"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
)

// Job names accepted by RunJob
const (
	JobStatusSync   = "status_sync"
	JobSessionPurge = "session_purge"
)

// StatusSyncLastRunKey is the state key holding the time of the last completed sync
const StatusSyncLastRunKey = "status_sync.last_run"

// ErrUnknownJob is returned by RunJob for a name that is not registered
var ErrUnknownJob = errors.New("unknown job")

// SnapshotStore keeps index snapshots and status events
type SnapshotStore interface {
	GetSnapshots(ctx context.Context) (map[int64]models.IndexSnapshotModel, error)
	UpsertSnapshots(ctx context.Context, rows []models.IndexSnapshotModel) (int64, error)
	RecordStatusEvent(ctx context.Context, ev *models.IndexStatusEventModel) error
}

// TimeStore records job bookkeeping
type TimeStore interface {
	SetTime(ctx context.Context, key string, t time.Time) error
}

// SessionPurger removes stale API sessions
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CronService is the service for the cron jobs
type CronService struct {
	cfg       *config.Config
	c         *cron.Cron
	gw        gateway.Gateway
	snapshots SnapshotStore
	state     TimeStore
	sessions  SessionPurger
	policy    lifecycle.Policy
	now       func() time.Time

	mu          sync.Mutex
	syncSession *gateway.Session
	jobs        map[string]func()
}

// NewCronService creates a new CronService
func NewCronService(cfg *config.Config, gw gateway.Gateway, snapshots SnapshotStore, state TimeStore, sessions SessionPurger, policy lifecycle.Policy) *CronService {
	cs := &CronService{
		cfg:       cfg,
		c:         cron.New(),
		gw:        gw,
		snapshots: snapshots,
		state:     state,
		sessions:  sessions,
		policy:    policy,
		now:       time.Now,
	}
	cs.jobs = map[string]func(){
		JobStatusSync:   cs.statusSyncJob,
		JobSessionPurge: cs.sessionPurgeJob,
	}
	return cs
}

// Start starts the cron service
func (cs *CronService) Start() {
	zaplogger.Info("Initializing CronService")

	// ------------------------------------------------------------
	// SCHEDULED jobs
	// ------------------------------------------------------------
	if cs.cfg.SyncEnabled() {
		cs.addScheduledJob("Index Status SYNC Job", cs.statusSyncJob, cs.cfg.SyncSchedule)
	} else {
		zaplogger.Warn("Index Status SYNC Job disabled, no service account configured")
	}
	cs.addScheduledJob("Session PURGE Job", cs.sessionPurgeJob, "@hourly")

	// ------------------------------------------------------------
	// STARTUP jobs
	// ------------------------------------------------------------
	cs.addStartupJob("Session PURGE Job", cs.sessionPurgeJob, 1*time.Second)
	if cs.cfg.SyncEnabled() {
		cs.addStartupJob("Index Status SYNC Job", cs.statusSyncJob, 5*time.Second)
	}

	cs.c.Start()
}

// Stop stops the scheduler and waits for running jobs
func (cs *CronService) Stop() {
	<-cs.c.Stop().Done()
}

// RunJob runs a registered job now, in the background
func (cs *CronService) RunJob(name string) error {
	job, ok := cs.jobs[name]
	if !ok {
		return ErrUnknownJob
	}
	go func() {
		zaplogger.Info("STARTED MANUAL job", zaplogger.Fields{"job": name})
		job()
		zaplogger.Info("COMPLETED MANUAL job", zaplogger.Fields{"job": name})
	}()
	return nil
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{
			"job": name,
		})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{
		"job": name,
	})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Info("STARTED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
		job()
		zaplogger.Info("COMPLETED SCHEDULED JOB", zaplogger.Fields{
			"job": name,
		})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{
		"job":      name,
		"schedule": schedule,
	})
}

func (cs *CronService) statusSyncJob() {
	jobName := "Index Status SYNC Job "
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := cs.SyncIndexStatus(ctx)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"indexes":    strconv.Itoa(res.Indexes),
		"changes":    strconv.Itoa(res.Changes),
		"disallowed": strconv.Itoa(res.Disallowed),
		"upserted":   strconv.FormatInt(res.Upserted, 10),
	})
}

func (cs *CronService) sessionPurgeJob() {
	jobName := "Session PURGE Job "
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := cs.sessions.PurgeExpired(ctx)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"rows_deleted": strconv.FormatInt(n, 10),
	})
}

// SyncResult summarizes one status sync run
type SyncResult struct {
	Indexes    int
	Changes    int
	Disallowed int
	Upserted   int64
}

// serviceSession returns a backend session for the sync account, signing in again when needed
func (cs *CronService) serviceSession(ctx context.Context) (*gateway.Session, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.syncSession.Active() && !cs.syncSession.Expired(cs.now()) {
		return cs.syncSession, nil
	}
	tokens, err := cs.gw.Login(ctx, cs.cfg.SyncUsername, cs.cfg.SyncPassword)
	if err != nil {
		return nil, err
	}
	cs.syncSession = gateway.NewSession(tokens.Access, tokens.Refresh)
	return cs.syncSession, nil
}

// SyncIndexStatus compares the backend's indexes with the stored snapshots.
// Every status change is recorded as an event; changes the lifecycle policy would not
// allow are still recorded, flagged and logged, since the backend is authoritative.
func (cs *CronService) SyncIndexStatus(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	sess, err := cs.serviceSession(ctx)
	if err != nil {
		return res, err
	}
	indexes, err := cs.gw.ListIndexes(ctx, sess, "")
	if err != nil {
		return res, err
	}
	snaps, err := cs.snapshots.GetSnapshots(ctx)
	if err != nil {
		return res, err
	}

	now := cs.now()
	rows := make([]models.IndexSnapshotModel, 0, len(indexes))
	for _, idx := range indexes {
		res.Indexes++
		if prev, ok := snaps[idx.ID]; ok && prev.Status != string(idx.Status) {
			res.Changes++
			from, _ := lifecycle.ParseStatus(prev.Status)
			ev := &models.IndexStatusEventModel{
				IndexID:    idx.ID,
				IndexName:  idx.Name,
				FromStatus: prev.Status,
				ToStatus:   string(idx.Status),
				Allowed:    from != "" && cs.policy.Allows(from, idx.Status),
				Policy:     cs.policy.Name(),
				ObservedAt: now,
			}
			if !ev.Allowed {
				res.Disallowed++
				zaplogger.Warn("index status changed outside the lifecycle policy", zaplogger.Fields{
					"index_id": idx.ID,
					"from":     ev.FromStatus,
					"to":       ev.ToStatus,
					"policy":   ev.Policy,
				})
			}
			if err := cs.snapshots.RecordStatusEvent(ctx, ev); err != nil {
				return res, err
			}
		}
		rows = append(rows, snapshotOf(idx, now))
	}

	if res.Upserted, err = cs.snapshots.UpsertSnapshots(ctx, rows); err != nil {
		return res, err
	}
	if err := cs.state.SetTime(ctx, StatusSyncLastRunKey, now); err != nil {
		return res, err
	}
	return res, nil
}

func snapshotOf(idx models.Index, at time.Time) models.IndexSnapshotModel {
	ids := make([]int64, 0, len(idx.Companies))
	for _, c := range idx.Companies {
		ids = append(ids, c.ID)
	}
	b, _ := json.Marshal(ids)
	return models.IndexSnapshotModel{
		IndexID:         idx.ID,
		Name:            idx.Name,
		Status:          string(idx.Status),
		TotalInvestment: idx.TotalInvestment,
		CompanyIDs:      datatypes.JSON(b),
		ObservedAt:      at,
	}
}
