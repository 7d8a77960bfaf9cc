package lifecycle

import (
	"github.com/GoVPN-Admin/GoVPN-Admin/internal/db/models"
)

// transition performs a guarded status change: a conditional UPDATE that
// only takes effect while the row still holds one of the expected statuses.
// Zero affected rows means another writer got there first and the caller
// must re-read instead of clobbering. This closes the read-status /
// write-status race without a distributed lock; the status column itself is
// the advisory lock.
func (e *Engine) transition(accountID uint64, from []models.Status, to models.Status, extra map[string]any) error {
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := e.db.Model(&models.Account{}).
		Where("id = ? AND status IN ?", accountID, from).
		Updates(updates)

	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return ErrStateConflict
	}

	return nil
}
