package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/ikuai"
)

// backdate rewrites updated_at without triggering the gorm auto-timestamp.
func backdate(t *testing.T, db *gorm.DB, accountID uint64, to time.Time) {
	t.Helper()

	err := db.Model(&models.Account{}).Where("id = ?", accountID).
		UpdateColumn("updated_at", to).Error
	require.NoError(t, err)
}

func TestReconcileMirrorsRemoteDrift(t *testing.T) {
	db := setupTestDB(t)
	gw := newFakeGateway()
	engine := newTestEngine(t, db, gw, &inlineDispatcher{})

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	// The gateway record drifts: new address, disabled remotely.
	gw.mu.Lock()
	gw.remote["alice"].IPAddr = "10.0.0.42"
	gw.remote["alice"].Enabled = "no"
	gw.mu.Unlock()

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Zero(t, result.Missing)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.42", account.IPAddr)
	assert.False(t, account.Enabled)
	assert.Equal(t, models.StatusDisabled, account.Status)
}

func TestReconcileAdvancesCreatingRow(t *testing.T) {
	db := setupTestDB(t)
	gw := newFakeGateway()
	engine := newTestEngine(t, db, gw, &heldDispatcher{})

	identity := seedIdentity(t, db, "alice", true)

	// The provisioning job never reports back, but the remote record shows
	// up anyway, say via a concurrent operator action on the device.
	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	gw.mu.Lock()
	gw.remote["alice"] = &ikuai.Account{ID: 7, Username: "alice", Enabled: "yes"}
	gw.mu.Unlock()

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, account.Status)
	require.NotNil(t, account.RemoteID)
	assert.Equal(t, int64(7), *account.RemoteID)
}

// interceptingGateway runs a hook on the first GetAccount call, simulating
// an operation that lands between the sweep's read and its write.
type interceptingGateway struct {
	*fakeGateway

	onGet func()
}

func (g *interceptingGateway) GetAccount(ctx context.Context, username string) (*ikuai.Account, error) {
	if g.onGet != nil {
		hook := g.onGet
		g.onGet = nil
		hook()
	}

	return g.fakeGateway.GetAccount(ctx, username)
}

func TestReconcileDoesNotReleaseDeletingLock(t *testing.T) {
	db := setupTestDB(t)
	gw := &interceptingGateway{fakeGateway: newFakeGateway()}
	held := &heldDispatcher{}
	engine := newTestEngine(t, db, gw, held)

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)
	held.runAll()

	// A delete request is accepted mid-sweep, after the sweep read the row
	// as active. Its soft lock must survive the sweep's write.
	gw.onGet = func() {
		outcome, errDel := engine.RequestDelete(identity.ID)
		require.NoError(t, errDel)
		require.Equal(t, DeleteEnqueued, outcome)
	}

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Zero(t, result.Synced)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleting, account.Status)

	// The pending deletion stays the only one; a repeat request queues
	// nothing new.
	outcome, err := engine.RequestDelete(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteAlreadyInProgress, outcome)
	assert.Len(t, held.jobs, 1)
}

func TestReconcileCountsMissing(t *testing.T) {
	db := setupTestDB(t)
	gw := newFakeGateway()
	engine := newTestEngine(t, db, gw, &inlineDispatcher{})

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	gw.mu.Lock()
	delete(gw.remote, "alice")
	gw.mu.Unlock()

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Missing)
	assert.Zero(t, result.Synced)

	// A single miss is not terminal; the row stays active.
	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, account.Status)
}

func TestReclaimStuckRows(t *testing.T) {
	db := setupTestDB(t)
	gw := newFakeGateway()
	engine := newTestEngine(t, db, gw, &heldDispatcher{})

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCreating, account.Status)

	backdate(t, db, account.ID, time.Now().Add(-2*time.Hour))

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Equal(t, 1, result.TimedOut)

	reclaimed, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reclaimed.Status)
	assert.Equal(t, "operation timed out, manual retry required", reclaimed.ErrorMessage)
}

func TestReclaimedRowNotResurrectedByLateJob(t *testing.T) {
	db := setupTestDB(t)
	gw := newFakeGateway()
	held := &heldDispatcher{}
	engine := newTestEngine(t, db, gw, held)

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)

	backdate(t, db, account.ID, time.Now().Add(-2*time.Hour))

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	require.Equal(t, 1, result.TimedOut)

	// The provisioning job finally reports back, long after the reclaim.
	// Its result is discarded; the failed state stands.
	held.runAll()

	reclaimed, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, reclaimed.Status)
	assert.Equal(t, "operation timed out, manual retry required", reclaimed.ErrorMessage)
}

func TestReclaimLeavesFreshRowsAlone(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(t, db, newFakeGateway(), &heldDispatcher{})

	identity := seedIdentity(t, db, "alice", true)

	_, err := engine.RequestCreate(identity.ID, 0)
	require.NoError(t, err)

	result, err := engine.ReconcileAccounts()
	require.NoError(t, err)
	assert.Zero(t, result.TimedOut)

	account, err := engine.Get(identity.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreating, account.Status)
}

func TestSweepExpired(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(t, db, newFakeGateway(), &inlineDispatcher{})

	alice := seedIdentity(t, db, "alice", true)
	bob := seedIdentity(t, db, "bob", true)
	carol := seedIdentity(t, db, "carol", true)

	past := time.Now().AddDate(0, 0, -1)
	future := time.Now().AddDate(0, 0, 30)

	require.NoError(t, db.Create(&models.Account{
		IdentityID: alice.ID, Username: "alice", Status: models.StatusActive, ExpiresAt: &past,
	}).Error)
	require.NoError(t, db.Create(&models.Account{
		IdentityID: bob.ID, Username: "bob", Status: models.StatusActive, ExpiresAt: &future,
	}).Error)
	require.NoError(t, db.Create(&models.Account{
		IdentityID: carol.ID, Username: "carol", Status: models.StatusActive,
	}).Error)

	count, err := engine.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	expired, err := engine.Get(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)

	stillActive, err := engine.Get(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stillActive.Status)

	// No expiry means no expiration.
	unbounded, err := engine.Get(carol.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, unbounded.Status)
}
