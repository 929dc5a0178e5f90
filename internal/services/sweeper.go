package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

const defaultMaxFailures = 5

// Finalizer is the part of AuctionManager the sweeper needs.
type Finalizer interface {
	FinalizeAuction(ctx context.Context, auctionID string) (domain.FinalizeResult, error)
}

// PassReport summarizes one sweeper pass.
type PassReport struct {
	Scanned     int
	Finalized   int
	Skipped     int
	Failed      int
	Quarantined int
}

// AuctionSweeper periodically finalizes every active auction whose end time
// has passed. A failing auction does not stop the pass; after maxFailures
// consecutive failures it is reported to the operator and left alone until
// ResetFailures is called.
type AuctionSweeper struct {
	cron        *cron.Cron
	interval    time.Duration
	repo        domain.AuctionRepository
	finalizer   Finalizer
	alerter     domain.OperatorAlerter
	clock       clock.Clock
	maxFailures int
	log         logger.Logger

	leader     domain.LeaderElection
	instanceID string

	mu       sync.Mutex
	failures map[string]int
}

func NewAuctionSweeper(
	repo domain.AuctionRepository,
	finalizer Finalizer,
	alerter domain.OperatorAlerter,
	clk clock.Clock,
	interval time.Duration,
	maxFailures int,
	log logger.Logger,
) *AuctionSweeper {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	cronLog := logger.CronLogger{Log: log}
	return &AuctionSweeper{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		interval:    interval,
		repo:        repo,
		finalizer:   finalizer,
		alerter:     alerter,
		clock:       clk,
		maxFailures: maxFailures,
		log:         log,
		failures:    make(map[string]int),
	}
}

// WithLeaderElection restricts passes to the instance holding leadership.
func (s *AuctionSweeper) WithLeaderElection(leader domain.LeaderElection, instanceID string) *AuctionSweeper {
	s.leader = leader
	s.instanceID = instanceID
	return s
}

func (s *AuctionSweeper) Start(ctx context.Context) error {
	s.log.Info("Starting auction sweeper", "interval", s.interval.String())

	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		report, err := s.RunPass(ctx)
		if err != nil {
			s.log.Error("Sweeper pass failed", "error", err)
			return
		}
		if report.Scanned > 0 {
			s.log.Info("Sweeper pass complete",
				"scanned", report.Scanned, "finalized", report.Finalized, "skipped", report.Skipped,
				"failed", report.Failed, "quarantined", report.Quarantined)
		}
	}))

	s.cron.Start()
	return nil
}

// Stop waits for a running pass to return.
func (s *AuctionSweeper) Stop() error {
	s.log.Info("Stopping auction sweeper")
	<-s.cron.Stop().Done()
	return nil
}

// RunPass finalizes every expired auction once. Cancelling ctx stops the pass
// between auctions; an auction already being finalized runs to completion.
func (s *AuctionSweeper) RunPass(ctx context.Context) (PassReport, error) {
	var report PassReport

	if s.leader != nil {
		isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
		if err != nil {
			return report, fmt.Errorf("check leadership: %w", err)
		}
		if !isLeader {
			s.log.Debug("Not leader, skipping sweep", "instance_id", s.instanceID)
			return report, nil
		}
	}

	expired, err := s.repo.GetExpiredActiveAuctions(ctx, s.clock.Now())
	if err != nil {
		return report, fmt.Errorf("list expired auctions: %w", err)
	}
	s.pruneFailures(expired)

	for _, auction := range expired {
		if ctx.Err() != nil {
			break
		}
		report.Scanned++

		if s.quarantined(auction.ID) {
			report.Quarantined++
			continue
		}

		result, err := s.finalizer.FinalizeAuction(context.WithoutCancel(ctx), auction.ID)
		if err != nil {
			report.Failed++
			s.recordFailure(ctx, auction.ID, err)
			continue
		}

		s.clearFailures(auction.ID)
		switch result.Outcome {
		case domain.FinalizedNow:
			report.Finalized++
		default:
			report.Skipped++
		}
	}

	return report, nil
}

// ResetFailures lifts the quarantine on an auction.
func (s *AuctionSweeper) ResetFailures(auctionID string) {
	s.clearFailures(auctionID)
	s.log.Info("Sweeper failures reset", "auction_id", auctionID)
}

// Failures returns the consecutive failure count for an auction.
func (s *AuctionSweeper) Failures(auctionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[auctionID]
}

func (s *AuctionSweeper) quarantined(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures[auctionID] >= s.maxFailures
}

func (s *AuctionSweeper) clearFailures(auctionID string) {
	s.mu.Lock()
	delete(s.failures, auctionID)
	s.mu.Unlock()
}

// pruneFailures forgets auctions that are no longer pending, such as ones
// finalized by an explicit command while quarantined.
func (s *AuctionSweeper) pruneFailures(pending []*domain.Auction) {
	ids := make(map[string]bool, len(pending))
	for _, a := range pending {
		ids[a.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.failures {
		if !ids[id] {
			delete(s.failures, id)
		}
	}
}

func (s *AuctionSweeper) recordFailure(ctx context.Context, auctionID string, cause error) {
	s.mu.Lock()
	s.failures[auctionID]++
	count := s.failures[auctionID]
	s.mu.Unlock()

	s.log.Error("Failed to finalize expired auction",
		"auction_id", auctionID, "attempt", count, "error", cause)

	if count == s.maxFailures && s.alerter != nil {
		s.alerter.Alert(context.WithoutCancel(ctx), auctionID,
			fmt.Sprintf("finalization failed %d times in a row, auction held back from sweeps", count), cause)
	}
}
