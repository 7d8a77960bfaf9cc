package models

import (
	"time"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/ikuai"
)

// Status represents the lifecycle state of a VPN account.
// The transitional states creating and deleting double as advisory soft
// locks: while one is held no competing create/delete is accepted, and the
// reconcile sweep reclaims rows stuck past the staleness threshold.
type Status string

const (
	// StatusCreating indicates remote provisioning is in flight.
	StatusCreating Status = "creating"
	// StatusActive indicates the account is provisioned and usable.
	StatusActive Status = "active"
	// StatusExpired indicates the expiry time has passed.
	StatusExpired Status = "expired"
	// StatusDisabled indicates the remote gateway reports the account disabled.
	StatusDisabled Status = "disabled"
	// StatusFailed indicates provisioning or deletion failed; the row is kept
	// for operator visibility.
	StatusFailed Status = "failed"
	// StatusDeleting indicates remote deletion is in flight.
	StatusDeleting Status = "deleting"
)

// Account represents a VPN account on the remote gateway, one per identity.
type Account struct {
	// ID is the local primary key.
	ID uint64 `gorm:"primaryKey"`
	// IdentityID links the account to exactly one identity.
	IdentityID uint64 `gorm:"uniqueIndex;not null"`
	// Identity is the owning identity row.
	Identity Identity `gorm:"foreignKey:IdentityID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE"`
	// RemoteID is the account id in the gateway's namespace. It is nil until
	// provisioning is confirmed and unique when present.
	RemoteID *int64 `gorm:"uniqueIndex"`
	// Username is the VPN login name.
	Username string `gorm:"unique;size:100;not null"`
	// Password is the encrypted VPN password.
	Password string `gorm:"size:255"`
	// Status is the lifecycle state.
	Status Status `gorm:"type:varchar(20);not null;default:'creating';index"`
	// Enabled mirrors the gateway's enabled flag.
	Enabled bool `gorm:"default:true"`
	// StartTime is when the account becomes valid.
	StartTime *time.Time
	// ExpiresAt is when the account expires. Nil means no expiry.
	ExpiresAt *time.Time `gorm:"index"`
	// LastConnectTime is the last VPN connect reported by the gateway.
	LastConnectTime *time.Time
	// LastDisconnectTime is the last VPN disconnect reported by the gateway.
	LastDisconnectTime *time.Time

	// Remote-mirrored configuration, corrected by the reconcile sweep.
	IPAddr     string `gorm:"size:45"`
	IPType     int    `gorm:"default:0"`
	MAC        string `gorm:"size:17"`
	AutoMAC    int    `gorm:"default:1"`
	PPPType    string `gorm:"size:20;default:'any'"`
	PPPName    string `gorm:"size:50"`
	BindIfname string `gorm:"size:50;default:'any'"`
	BindVlanID string `gorm:"size:20;default:'0'"`
	AutoVlanID int    `gorm:"default:1"`
	Share      int    `gorm:"default:1"`
	Upload     int64  `gorm:"default:0"`
	Download   int64  `gorm:"default:0"`
	Duration   int    `gorm:"default:0"`
	Packages   int64  `gorm:"default:0"`
	Comment    string

	// TaskID correlates the row with the in-flight background job.
	TaskID string `gorm:"size:100"`
	// ErrorMessage holds the verbatim failure message for operator diagnosis.
	ErrorMessage string

	// CreatedAt is the timestamp when the account was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the account was last updated (managed by GORM).
	UpdatedAt time.Time
}

// IsExpired reports whether the expiry time has passed. Accounts without an
// expiry never expire.
func (a *Account) IsExpired() bool {
	if a.ExpiresAt == nil {
		return false
	}

	return time.Now().After(*a.ExpiresAt)
}

// IsUsable reports whether the account can be used for VPN logins, i.e. a
// client configuration may be generated for it.
func (a *Account) IsUsable() bool {
	return a.Status == StatusActive && a.Enabled && !a.IsExpired()
}

// DaysUntilExpiry returns the number of whole days until expiry, or -1 when
// the account has no expiry.
func (a *Account) DaysUntilExpiry() int {
	if a.ExpiresAt == nil {
		return -1
	}

	d := int(time.Until(*a.ExpiresAt).Hours() / 24)
	if d < 0 {
		return 0
	}

	return d
}

// ApplyRemote mirrors gateway truth onto the local record. The password is
// not mirrored; the local encrypted copy stays authoritative. The status is
// re-derived from the mirrored fields, which is how a creating account
// silently advances once the remote side catches up.
func (a *Account) ApplyRemote(data *ikuai.Account) {
	remoteID := data.ID
	a.RemoteID = &remoteID
	a.Enabled = data.Enabled == "yes"

	a.IPAddr = data.IPAddr
	a.IPType = data.IPType
	a.MAC = data.MAC
	a.AutoMAC = data.AutoMAC

	a.PPPType = data.PPPType
	a.PPPName = data.PPPName
	a.BindIfname = data.BindIfname
	a.BindVlanID = string(data.BindVlanID)
	a.AutoVlanID = data.AutoVlanID

	a.Share = data.Share
	a.Upload = data.Upload
	a.Download = data.Download
	a.Duration = data.Duration
	a.Packages = data.Packages
	a.Comment = data.Comment

	a.StartTime = unixTime(data.StartTime)
	a.ExpiresAt = unixTime(data.Expires)
	a.LastConnectTime = unixTime(data.LastConnTime)
	a.LastDisconnectTime = unixTime(data.LastOffTime)

	switch {
	case a.IsExpired():
		a.Status = StatusExpired
	case a.Enabled && a.RemoteID != nil:
		a.Status = StatusActive
	case !a.Enabled:
		a.Status = StatusDisabled
	}
}

// RemoteColumns returns the mirrored fields, plus the derived status, as
// update columns. Mirror writes go through a guarded conditional update
// rather than a full-row save, so a row taken over by a user operation in
// the meantime is never clobbered. The column set must stay in lockstep
// with ApplyRemote.
func (a *Account) RemoteColumns() map[string]any {
	return map[string]any{
		"remote_id":            a.RemoteID,
		"enabled":              a.Enabled,
		"ip_addr":              a.IPAddr,
		"ip_type":              a.IPType,
		"mac":                  a.MAC,
		"auto_mac":             a.AutoMAC,
		"ppp_type":             a.PPPType,
		"ppp_name":             a.PPPName,
		"bind_ifname":          a.BindIfname,
		"bind_vlan_id":         a.BindVlanID,
		"auto_vlan_id":         a.AutoVlanID,
		"share":                a.Share,
		"upload":               a.Upload,
		"download":             a.Download,
		"duration":             a.Duration,
		"packages":             a.Packages,
		"comment":              a.Comment,
		"start_time":           a.StartTime,
		"expires_at":           a.ExpiresAt,
		"last_connect_time":    a.LastConnectTime,
		"last_disconnect_time": a.LastDisconnectTime,
		"status":               a.Status,
	}
}

// unixTime converts a gateway unix timestamp to a time pointer, treating
// zero as absent.
func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}

	t := time.Unix(ts, 0)

	return &t
}
