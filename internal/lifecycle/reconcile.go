package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
)

// SweepResult summarizes one reconcile pass.
type SweepResult struct {
	// Synced counts rows whose remote record was found and mirrored.
	Synced int
	// Missing counts rows whose username was absent from the gateway. A
	// single miss is logged and skipped; only the staleness timeout may
	// force a terminal state.
	Missing int
	// TimedOut counts rows reclaimed from creating/deleting by the
	// staleness threshold.
	TimedOut int
	// Errors collects per-record failures; they never abort the sweep.
	Errors []string
}

// ReconcileAccounts pulls gateway truth into local rows. For every account
// in active or creating, the matching remote record is fetched (through the
// listing cache; a sweep is poll-heavy) and mirrored. This is how a
// creating row silently advances once the remote side catches up, and how
// drift in bandwidth/IP/connection-time fields is corrected. Afterwards, any
// row stuck in creating or deleting past the staleness threshold is forced
// to failed: the owning job may have crashed without reporting back, and
// the status soft lock must not be held forever.
func (e *Engine) ReconcileAccounts() (*SweepResult, error) {
	ctx := context.Background()
	result := &SweepResult{}

	var accounts []models.Account

	err := e.db.
		Where("status IN ?", []models.Status{models.StatusActive, models.StatusCreating}).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	for i := range accounts {
		e.reconcileOne(ctx, &accounts[i], result)
	}

	e.reclaimStuck(result)

	log.Info().
		Int("synced", result.Synced).
		Int("missing", result.Missing).
		Int("timed_out", result.TimedOut).
		Int("errors", len(result.Errors)).
		Msg("account reconcile sweep finished")

	return result, nil
}

// reconcileOne mirrors one remote record onto its local row. Sweep writes
// are restricted to remote-truth fields and terminal/timeout outcomes; the
// sweep never initiates a create or delete.
func (e *Engine) reconcileOne(ctx context.Context, account *models.Account, result *SweepResult) {
	remote, err := e.gateway.GetAccount(ctx, account.Username)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Username, err))
		return
	}

	if remote == nil {
		log.Warn().Str("username", account.Username).Msg("account not found on gateway")
		result.Missing++

		return
	}

	mirrored := *account
	mirrored.ApplyRemote(remote)

	// The row was read at the start of the sweep; a user operation may have
	// taken it over since. The mirror only lands while the row still holds a
	// status the sweep read it in, so a deleting soft lock acquired in the
	// meantime is never released from here.
	res := e.db.Model(&models.Account{}).
		Where("id = ? AND status IN ?", account.ID,
			[]models.Status{models.StatusActive, models.StatusCreating}).
		Updates(mirrored.RemoteColumns())

	if res.Error != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", account.Username, res.Error))
		return
	}

	if res.RowsAffected == 0 {
		log.Debug().Str("username", account.Username).
			Msg("account changed hands during sweep, skipping mirror")

		return
	}

	result.Synced++
}

// reclaimStuck force-fails rows that have held a transitional status past
// the staleness threshold, independent of whether the owning job ever
// reports back.
func (e *Engine) reclaimStuck(result *SweepResult) {
	cutoff := time.Now().Add(-e.staleAfter)

	var stuck []models.Account

	err := e.db.
		Where("status IN ? AND updated_at < ?",
			[]models.Status{models.StatusCreating, models.StatusDeleting}, cutoff).
		Find(&stuck).Error
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("listing stuck accounts: %v", err))
		return
	}

	for i := range stuck {
		account := &stuck[i]

		errTransition := e.transition(account.ID,
			[]models.Status{models.StatusCreating, models.StatusDeleting},
			models.StatusFailed,
			map[string]any{"error_message": timeoutMessage},
		)
		if errTransition != nil {
			// Lost the race to the owning job; that is the good case.
			continue
		}

		result.TimedOut++

		log.Warn().Str("username", account.Username).Str("status", string(account.Status)).
			Msg("reclaimed account stuck in transitional status")
	}
}

// SweepExpired bulk-transitions every active account whose expiry has
// passed to expired. Pure local-state operation; no remote call.
func (e *Engine) SweepExpired() (int64, error) {
	res := e.db.Model(&models.Account{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.StatusActive, time.Now()).
		Update("status", models.StatusExpired)

	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		log.Info().Int64("count", res.RowsAffected).Msg("marked accounts expired")
	}

	return res.RowsAffected, nil
}
