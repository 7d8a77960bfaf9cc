package ikuai

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexString decodes JSON values the gateway emits inconsistently as either
// a string or a bare number. The add and edit endpoints disagree about the
// type of bind_vlanid, for example.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*f = FlexString(s)

		return nil
	}

	*f = FlexString(b)

	return nil
}

// MarshalJSON implements json.Marshaler. Values round-trip as strings,
// which the gateway accepts for every field that varies.
func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// Account is a PPP user record as returned by the gateway's show action.
type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Passwd       string     `json:"passwd"`
	Enabled      string     `json:"enabled"`
	StartTime    int64      `json:"start_time"`
	Expires      int64      `json:"expires"`
	CreateTime   FlexString `json:"create_time"`
	LastConnTime int64      `json:"last_conntime"`
	LastOffTime  int64      `json:"last_offtime"`
	Duration     int        `json:"duration"`
	PPPType      string     `json:"ppptype"`
	PPPName      string     `json:"pppname"`
	BindIfname   string     `json:"bind_ifname"`
	BindVlanID   FlexString `json:"bind_vlanid"`
	AutoVlanID   int        `json:"auto_vlanid"`
	PPPoEv6WAN   string     `json:"pppoev6_wan"`
	IPType       int        `json:"ip_type"`
	IPAddr       string     `json:"ip_addr"`
	MAC          string     `json:"mac"`
	AutoMAC      int        `json:"auto_mac"`
	Share        int        `json:"share"`
	Upload       int64      `json:"upload"`
	Download     int64      `json:"download"`
	Packages     int64      `json:"packages"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Address      string     `json:"address"`
	Comment      string     `json:"comment"`
	CardID       string     `json:"cardid"`
}

// AddRequest is the param payload for the add action. Every field has a safe
// default so only username and password are mandatory.
type AddRequest struct {
	Username   string     `json:"username"`
	Passwd     string     `json:"passwd"`
	Enabled    string     `json:"enabled"`
	StartTime  int64      `json:"start_time"`
	Expires    int64      `json:"expires"`
	CreateTime string     `json:"create_time"`
	PPPType    string     `json:"ppptype"`
	BindIfname string     `json:"bind_ifname"`
	BindVlanID FlexString `json:"bind_vlanid"`
	AutoVlanID int        `json:"auto_vlanid"`
	PPPoEv6WAN string     `json:"pppoev6_wan"`
	IPType     int        `json:"ip_type"`
	IPAddr     string     `json:"ip_addr"`
	MAC        string     `json:"mac"`
	AutoMAC    int        `json:"auto_mac"`
	Share      int        `json:"share"`
	Upload     int64      `json:"upload"`
	Download   int64      `json:"download"`
	Packages   int64      `json:"packages"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Address    string     `json:"address"`
	Comment    string     `json:"comment"`
	CardID     string     `json:"cardid"`
}

// NewAddRequest builds an add request with protocol defaults: enabled, any
// PPP type and interface, automatic VLAN/MAC/IP, a share count of 999 and no
// bandwidth caps. expiresDays of zero or less means no expiry.
func NewAddRequest(username, password string, expiresDays int) AddRequest {
	now := time.Now()

	var expires int64
	if expiresDays > 0 {
		expires = now.AddDate(0, 0, expiresDays).Unix()
	}

	return AddRequest{
		Username:   username,
		Passwd:     password,
		Enabled:    "yes",
		StartTime:  now.Unix(),
		Expires:    expires,
		PPPType:    "any",
		BindIfname: "any",
		BindVlanID: "0",
		AutoVlanID: 1,
		IPType:     0,
		AutoMAC:    1,
		Share:      999,
	}
}

// EditRequest is the param payload for the edit action. The gateway replaces
// the whole record, so the payload must carry the complete field set rather
// than a partial patch.
type EditRequest struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Passwd        string     `json:"passwd"`
	Enabled       string     `json:"enabled"`
	StartTime     int64      `json:"start_time"`
	Expires       int64      `json:"expires"`
	CreateTime    int64      `json:"create_time"`
	LastConnTime  int64      `json:"last_conntime"`
	LastOffTime   int64      `json:"last_offtime"`
	Duration      int        `json:"duration"`
	PPPType       string     `json:"ppptype"`
	PPPName       string     `json:"pppname"`
	BindIfname    string     `json:"bind_ifname"`
	BindVlanID    FlexString `json:"bind_vlanid"`
	AutoVlanID    int        `json:"auto_vlanid"`
	PPPoEv6WAN    string     `json:"pppoev6_wan"`
	IPType        int        `json:"ip_type"`
	IPAddr        string     `json:"ip_addr"`
	MAC           string     `json:"mac"`
	AutoMAC       int        `json:"auto_mac"`
	Share         int        `json:"share"`
	Upload        int64      `json:"upload"`
	Download      int64      `json:"download"`
	Packages      int64      `json:"packages"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone"`
	Address       string     `json:"address"`
	Comment       string     `json:"comment"`
	CardID        string     `json:"cardid"`
	ProxyUsername string     `json:"proxy_username"`
}

// EditRequestFrom builds a full edit payload from a remote record, so call
// sites only touch the fields they mean to change.
func EditRequestFrom(a *Account) EditRequest {
	return EditRequest{
		ID:           a.ID,
		Username:     a.Username,
		Passwd:       a.Passwd,
		Enabled:      a.Enabled,
		StartTime:    a.StartTime,
		Expires:      a.Expires,
		LastConnTime: a.LastConnTime,
		LastOffTime:  a.LastOffTime,
		Duration:     a.Duration,
		PPPType:      a.PPPType,
		PPPName:      a.PPPName,
		BindIfname:   a.BindIfname,
		BindVlanID:   a.BindVlanID,
		AutoVlanID:   a.AutoVlanID,
		PPPoEv6WAN:   a.PPPoEv6WAN,
		IPType:       a.IPType,
		IPAddr:       a.IPAddr,
		MAC:          a.MAC,
		AutoMAC:      a.AutoMAC,
		Share:        a.Share,
		Upload:       a.Upload,
		Download:     a.Download,
		Packages:     a.Packages,
		Name:         a.Name,
		Phone:        a.Phone,
		Address:      a.Address,
		Comment:      a.Comment,
		CardID:       a.CardID,
	}
}
