package service

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trial-access-bot/internal/audit"
	"trial-access-bot/internal/i18n"
	"trial-access-bot/internal/principal/domain"
	"trial-access-bot/internal/telemetry"
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Scanned  int
	Revoked  int
	Notified int
	Cleared  int
	// Skipped counts grants replaced between the scan and the clear.
	Skipped int
	// Failed counts principals left for the next sweep.
	Failed int
}

func (r *SweepReport) add(o SweepReport) {
	r.Revoked += o.Revoked
	r.Notified += o.Notified
	r.Cleared += o.Cleared
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Sweep revokes every grant that expired at or before now, notifies the principal, and
// clears the grant. Only a failure to list expired records aborts the run; per-principal
// failures are logged and counted. Each run carries an id on its log lines and events.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	runID := s.newRunID()
	expired, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		log.Printf("sweeper: run=%s list expired: %v", runID, err)
		return SweepReport{}, err
	}
	report := SweepReport{Scanned: len(expired)}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.SweepConcurrency)
	for _, rec := range expired {
		g.Go(func() error {
			out := s.expire(ctx, rec)
			mu.Lock()
			report.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.SweepCompleted(ctx, time.Since(started))
	if report.Scanned > 0 {
		log.Printf("sweeper: run=%s scanned=%d revoked=%d notified=%d cleared=%d skipped=%d failed=%d",
			runID, report.Scanned, report.Revoked, report.Notified, report.Cleared, report.Skipped, report.Failed)
		s.emit(ctx, telemetry.EventSweepCompleted, 0, map[string]string{
			"run_id":  runID,
			"scanned": strconv.Itoa(report.Scanned),
			"cleared": strconv.Itoa(report.Cleared),
			"failed":  strconv.Itoa(report.Failed),
		})
	}
	return report, nil
}

func (s *Service) expire(ctx context.Context, rec *domain.Record) SweepReport {
	var out SweepReport
	id := rec.PrincipalID
	observed := rec.Grant.ExpiresAt

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
	err := s.transport.RevokeMember(callCtx, s.cfg.Destination, id)
	cancel()
	if err != nil {
		log.Printf("sweeper: revoke principal %d: %v", id, err)
		s.logEvent(ctx, id, audit.ActionRevocationFailed, err.Error())
		s.emit(ctx, telemetry.EventRevocationFailed, id, nil)
		out.Failed++
		return out
	}
	out.Revoked++
	s.metrics.AccessRevoked(ctx)

	locale := rec.LocaleOr(s.cfg.DefaultLocale)
	notifyCtx, cancel := context.WithTimeout(ctx, s.cfg.TransportTimeout)
	err = s.transport.Notify(notifyCtx, id, s.texts.Text(locale, i18n.KeyExpiredMessage))
	cancel()
	if err != nil {
		log.Printf("sweeper: notify principal %d: %v", id, err)
		s.emit(ctx, telemetry.EventNotificationFailed, id, nil)
	} else {
		out.Notified++
	}

	cleared, err := s.repo.ClearGrant(ctx, id, observed)
	switch {
	case err != nil:
		log.Printf("sweeper: clear grant for principal %d: %v", id, err)
		out.Failed++
	case !cleared:
		s.logEvent(ctx, id, audit.ActionGrantClearSkipped, observed.Format(time.RFC3339))
		out.Skipped++
	default:
		s.logEvent(ctx, id, audit.ActionAccessRevoked, observed.Format(time.RFC3339))
		s.emit(ctx, telemetry.EventAccessRevoked, id, map[string]string{"locale": locale})
		out.Cleared++
	}
	return out
}
