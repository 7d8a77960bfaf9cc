// Package lifecycle owns the VPN account state machine and its
// reconciliation against the remote gateway. User-facing operations mutate
// local state and enqueue background jobs for the remote side; periodic
// sweeps pull gateway truth back into local rows and reclaim rows stuck in
// transitional states.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/ikuai"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/secret"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/uniuri"
)

const (
	// defaultStaleAfter is how long a row may sit in creating/deleting before
	// the reconcile sweep forcibly fails it. A crash between "set status" and
	// "perform remote action" leaves the soft lock held; this is the reclaim.
	defaultStaleAfter = time.Hour

	// defaultDeleteRetries bounds remote delete attempts before settling
	// into failed.
	defaultDeleteRetries = 3

	// generatedPasswordLen is the length of generated VPN passwords when the
	// identity has no cached plaintext password.
	generatedPasswordLen = 8

	// timeoutMessage is recorded on rows reclaimed by the staleness sweep.
	timeoutMessage = "operation timed out, manual retry required"
)

// Gateway is the remote side of the lifecycle engine. *ikuai.Client
// satisfies it; tests substitute fakes.
type Gateway interface {
	CreateAccount(ctx context.Context, req ikuai.AddRequest) (int64, error)
	GetAccount(ctx context.Context, username string) (*ikuai.Account, error)
	GetAccountFresh(ctx context.Context, username string) (*ikuai.Account, error)
	UpdateAccount(ctx context.Context, remoteID int64, req ikuai.EditRequest) error
	DeleteAccount(ctx context.Context, remoteID int64) error
}

// Dispatcher queues background jobs and returns their id.
type Dispatcher interface {
	Enqueue(name string, run func()) (string, error)
}

// Config tunes the engine.
type Config struct {
	// StaleAfter is the staleness threshold for transitional statuses.
	StaleAfter time.Duration
	// DeleteRetries bounds remote delete attempts.
	DeleteRetries int
	// DefaultExpiryDays is used when a create request does not specify one.
	DefaultExpiryDays int
}

// Engine drives the account lifecycle.
type Engine struct {
	db            *gorm.DB
	gateway       Gateway
	dispatcher    Dispatcher
	enc           *secret.Encryptor
	staleAfter    time.Duration
	deleteRetries int
	expiryDays    int
}

// New creates a lifecycle engine.
func New(db *gorm.DB, gateway Gateway, dispatcher Dispatcher, enc *secret.Encryptor, cfg Config) *Engine {
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}

	if cfg.DeleteRetries == 0 {
		cfg.DeleteRetries = defaultDeleteRetries
	}

	if cfg.DefaultExpiryDays == 0 {
		cfg.DefaultExpiryDays = 30
	}

	return &Engine{
		db:            db,
		gateway:       gateway,
		dispatcher:    dispatcher,
		enc:           enc,
		staleAfter:    cfg.StaleAfter,
		deleteRetries: cfg.DeleteRetries,
		expiryDays:    cfg.DefaultExpiryDays,
	}
}

// Get returns the account row for an identity, or ErrNoAccount.
func (e *Engine) Get(identityID uint64) (*models.Account, error) {
	var account models.Account

	err := e.db.First(&account, "identity_id = ?", identityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAccount
	}

	if err != nil {
		return nil, err
	}

	return &account, nil
}

// PlainPassword decrypts the account's stored VPN password.
func (e *Engine) PlainPassword(account *models.Account) (string, error) {
	return e.enc.Decrypt(account.Password)
}

// RequestCreate accepts a user-initiated create: it inserts the local row in
// creating state and enqueues the provisioning job. A prior failed row is
// replaced; any other existing row is a rejection, with distinct errors for
// "already creating" and "already provisioned". expiresDays of zero means
// the configured default.
func (e *Engine) RequestCreate(identityID uint64, expiresDays int) (*models.Account, error) {
	var identity models.Identity

	err := e.db.First(&identity, "id = ?", identityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityUnknown
	}

	if err != nil {
		return nil, err
	}

	if !identity.Active {
		return nil, ErrIdentityInactive
	}

	var existing models.Account

	err = e.db.First(&existing, "identity_id = ?", identityID).Error

	switch {
	case err == nil && existing.Status == models.StatusCreating:
		return nil, ErrAlreadyCreating
	case err == nil && existing.Status == models.StatusFailed:
		// A failed attempt may be replaced.
		if errDel := e.db.Delete(&existing).Error; errDel != nil {
			return nil, errDel
		}
	case err == nil:
		return nil, ErrAlreadyProvisioned
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if expiresDays <= 0 {
		expiresDays = e.expiryDays
	}

	password, err := e.provisionPassword(&identity)
	if err != nil {
		return nil, err
	}

	encrypted, err := e.enc.Encrypt(password)
	if err != nil {
		return nil, err
	}

	account := models.Account{
		IdentityID: identityID,
		Username:   identity.Username,
		Password:   encrypted,
		Status:     models.StatusCreating,
		Enabled:    true,
	}

	if err = e.db.Create(&account).Error; err != nil {
		// Two concurrent requests can both pass the existence check; the
		// loser hits the identity unique index and gets the same rejection
		// a sequential second request would.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyCreating
		}

		return nil, err
	}

	jobID, err := e.dispatcher.Enqueue("provision-account", func() {
		e.provision(account.ID, identity, password, expiresDays)
	})
	if err != nil {
		e.failAccount(account.ID, fmt.Sprintf("failed to enqueue provisioning job: %v", err))
		return nil, err
	}

	e.db.Model(&models.Account{}).Where("id = ?", account.ID).Update("task_id", jobID)
	account.TaskID = jobID

	log.Info().Str("username", identity.Username).Str("job_id", jobID).Msg("account creation requested")

	return &account, nil
}

// provisionPassword returns the identity's cached plaintext password when
// present, otherwise a random one.
func (e *Engine) provisionPassword(identity *models.Identity) (string, error) {
	if identity.PlainPassword != "" {
		password, err := e.enc.Decrypt(identity.PlainPassword)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt cached password: %w", err)
		}

		if password != "" {
			return password, nil
		}
	}

	return uniuri.NewLen(generatedPasswordLen), nil
}

// provision is the background provisioning job: create remotely, fetch the
// canonical remote record with the cache bypassed, mirror it, mark active.
// Any failure marks the row failed with the error message kept verbatim.
func (e *Engine) provision(accountID uint64, identity models.Identity, password string, expiresDays int) {
	ctx := context.Background()

	req := ikuai.NewAddRequest(identity.Username, password, expiresDays)
	req.Name = identity.DisplayName
	req.Comment = "Created for user: " + identity.Username

	if _, err := e.gateway.CreateAccount(ctx, req); err != nil {
		e.failAccount(accountID, err.Error())
		return
	}

	remote, err := e.gateway.GetAccountFresh(ctx, identity.Username)
	if err != nil {
		e.failAccount(accountID, err.Error())
		return
	}

	if remote == nil {
		e.failAccount(accountID, "account created but not found on gateway")
		return
	}

	var mirrored models.Account
	mirrored.ApplyRemote(remote)
	mirrored.Status = models.StatusActive

	columns := mirrored.RemoteColumns()
	columns["error_message"] = ""

	// Only a row still holding the creating soft lock may be activated;
	// one reclaimed by the staleness sweep stays failed.
	res := e.db.Model(&models.Account{}).
		Where("id = ? AND status = ?", accountID, models.StatusCreating).
		Updates(columns)

	if res.Error != nil {
		log.Error().Err(res.Error).Uint64("account_id", accountID).Msg("failed to persist provisioned account")
		return
	}

	if res.RowsAffected == 0 {
		log.Warn().Uint64("account_id", accountID).
			Msg("account row no longer creating, discarding provisioning result")

		return
	}

	log.Info().Str("username", identity.Username).Int64("remote_id", remote.ID).Msg("account provisioned")
}

// DeleteOutcome tells the caller how a delete request was handled.
type DeleteOutcome int

const (
	// DeleteEnqueued means the deletion job was queued.
	DeleteEnqueued DeleteOutcome = iota
	// DeleteAlreadyGone means no account exists; treated as already deleted.
	DeleteAlreadyGone
	// DeleteAlreadyInProgress means a deletion is already running; no
	// duplicate job is queued.
	DeleteAlreadyInProgress
)

// RequestDelete accepts a user-initiated delete. Missing rows are treated as
// already deleted; rows in creating are rejected until the soft lock clears.
func (e *Engine) RequestDelete(identityID uint64) (DeleteOutcome, error) {
	account, err := e.Get(identityID)
	if errors.Is(err, ErrNoAccount) {
		return DeleteAlreadyGone, nil
	}

	if err != nil {
		return 0, err
	}

	switch account.Status {
	case models.StatusCreating:
		return 0, ErrCreationInProgress
	case models.StatusDeleting:
		return DeleteAlreadyInProgress, nil
	}

	err = e.transition(account.ID,
		[]models.Status{models.StatusActive, models.StatusExpired, models.StatusDisabled, models.StatusFailed},
		models.StatusDeleting,
		map[string]any{"error_message": ""},
	)
	if err != nil {
		return 0, err
	}

	jobID, err := e.dispatcher.Enqueue("delete-account", func() {
		e.remove(account.ID)
	})
	if err != nil {
		e.failAccount(account.ID, fmt.Sprintf("failed to enqueue deletion job: %v", err))
		return 0, err
	}

	e.db.Model(&models.Account{}).Where("id = ?", account.ID).Update("task_id", jobID)

	log.Info().Str("username", account.Username).Str("job_id", jobID).Msg("account deletion requested")

	return DeleteEnqueued, nil
}

// remove is the background deletion job. A delete call may succeed remotely
// while its response is lost, so a failed call is followed by an existence
// probe with the cache bypassed: absence is success. A probe that itself
// fails leaves the row in failed with an explicit orphan warning instead of
// silently dropping the local record.
func (e *Engine) remove(accountID uint64) {
	ctx := context.Background()

	var account models.Account

	err := e.db.First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}

	if err != nil {
		log.Error().Err(err).Uint64("account_id", accountID).Msg("failed to load account for deletion")
		return
	}

	if account.RemoteID != nil {
		if ok := e.removeRemote(ctx, &account); !ok {
			return
		}
	}

	if err = e.db.Delete(&account).Error; err != nil {
		log.Error().Err(err).Str("username", account.Username).Msg("failed to delete local account row")
		return
	}

	log.Info().Str("username", account.Username).Msg("account deleted")
}

// removeRemote drives the bounded remote delete loop. Returns true when the
// remote record is confirmed gone, directly or via probe.
func (e *Engine) removeRemote(ctx context.Context, account *models.Account) bool {
	var lastErr error

	for attempt := 1; attempt <= e.deleteRetries; attempt++ {
		lastErr = e.gateway.DeleteAccount(ctx, *account.RemoteID)
		if lastErr == nil {
			return true
		}

		log.Warn().Err(lastErr).Str("username", account.Username).Int("attempt", attempt).
			Msg("remote delete failed, probing existence")

		remote, probeErr := e.gateway.GetAccountFresh(ctx, account.Username)
		if probeErr != nil {
			e.failAccount(account.ID, fmt.Sprintf(
				"delete unconfirmed: remote call failed (%v) and existence probe failed (%v); "+
					"the gateway account may be orphaned, verify manually", lastErr, probeErr))

			return false
		}

		if remote == nil {
			log.Info().Str("username", account.Username).
				Msg("account absent from gateway, treating delete as succeeded")

			return true
		}
	}

	e.failAccount(account.ID, fmt.Sprintf("delete failed after %d attempts: %v", e.deleteRetries, lastErr))

	return false
}

// Renew extends the account expiry by days, counted from the later of the
// current expiry and now, and reactivates expired accounts. The new expiry
// is pushed to the gateway in the background when the account is already
// provisioned there.
func (e *Engine) Renew(identityID uint64, days int) (*models.Account, error) {
	account, err := e.Get(identityID)
	if err != nil {
		return nil, err
	}

	if account.Status != models.StatusActive && account.Status != models.StatusExpired {
		return nil, ErrNotRenewable
	}

	base := time.Now()
	if account.ExpiresAt != nil && account.ExpiresAt.After(base) {
		base = *account.ExpiresAt
	}

	newExpiry := base.AddDate(0, 0, days)

	// Guarded like every other status write: a delete accepted since the
	// read above holds the deleting soft lock, and the renew must lose.
	err = e.transition(account.ID,
		[]models.Status{models.StatusActive, models.StatusExpired},
		models.StatusActive,
		map[string]any{"expires_at": newExpiry},
	)
	if err != nil {
		return nil, err
	}

	account.ExpiresAt = &newExpiry
	account.Status = models.StatusActive

	if account.RemoteID != nil {
		remoteID := *account.RemoteID
		username := account.Username

		if _, errEnq := e.dispatcher.Enqueue("push-expiry", func() {
			e.pushExpiry(remoteID, username, newExpiry)
		}); errEnq != nil {
			log.Error().Err(errEnq).Str("username", username).Msg("failed to enqueue expiry push")
		}
	}

	log.Info().Str("username", account.Username).Time("expires_at", newExpiry).Msg("account renewed")

	return account, nil
}

// pushExpiry writes a renewed expiry to the gateway. The edit protocol
// replaces the whole record, so the payload is built from a fresh remote
// read with only the expiry changed. Failures are logged; the next
// reconcile sweep has no authority over expiry, so local remains the source
// for expiry policy.
func (e *Engine) pushExpiry(remoteID int64, username string, expiry time.Time) {
	ctx := context.Background()

	remote, err := e.gateway.GetAccountFresh(ctx, username)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to read account for expiry push")
		return
	}

	if remote == nil {
		log.Warn().Str("username", username).Msg("account missing from gateway, skipping expiry push")
		return
	}

	req := ikuai.EditRequestFrom(remote)
	req.Expires = expiry.Unix()

	if err = e.gateway.UpdateAccount(ctx, remoteID, req); err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to push renewed expiry to gateway")
		return
	}

	log.Info().Str("username", username).Time("expires_at", expiry).Msg("pushed renewed expiry to gateway")
}

// failAccount records a terminal failure with the message kept verbatim.
func (e *Engine) failAccount(accountID uint64, message string) {
	res := e.db.Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"status":        models.StatusFailed,
			"error_message": message,
		})

	if res.Error != nil {
		log.Error().Err(res.Error).Uint64("account_id", accountID).Msg("failed to mark account failed")
	}
}
