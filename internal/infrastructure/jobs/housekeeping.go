package jobs

import (
	"context"
	"log"
	"time"

	"wallet-link.backend/internal/domain/repositories"
	"wallet-link.backend/pkg/mailbox"
)

// staleEndpointAge is how long a device may stay offline before its
// notification endpoint is deactivated
const staleEndpointAge = 30 * 24 * time.Hour

// HousekeepingJob prunes aged-out mailbox messages and deactivates stale
// notification endpoints. Neither task is correctness-critical; expiry is
// also checked lazily on the hot paths.
type HousekeepingJob struct {
	mbox         *mailbox.Mailbox
	endpointRepo repositories.NotificationEndpointRepository
	interval     time.Duration
	stop         chan struct{}
}

func NewHousekeepingJob(mbox *mailbox.Mailbox, endpointRepo repositories.NotificationEndpointRepository) *HousekeepingJob {
	return &HousekeepingJob{
		mbox:         mbox,
		endpointRepo: endpointRepo,
		interval:     time.Minute,
		stop:         make(chan struct{}),
	}
}

func (j *HousekeepingJob) Start(ctx context.Context) {
	log.Println("🕐 Starting housekeeping job...")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Housekeeping job stopped (context cancelled)")
			return
		case <-j.stop:
			log.Println("⏹️ Housekeeping job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *HousekeepingJob) Stop() {
	close(j.stop)
}

func (j *HousekeepingJob) runOnce(ctx context.Context) {
	j.mbox.Prune()

	count, err := j.endpointRepo.DeactivateStale(ctx, time.Now().Add(-staleEndpointAge))
	if err != nil {
		log.Printf("❌ Error deactivating stale endpoints: %v", err)
		return
	}
	if count > 0 {
		log.Printf("✅ Deactivated %d stale notification endpoints", count)
	}
}
