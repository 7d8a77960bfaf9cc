package config

import (
	"time"

	"github.com/GoVPN-Admin/GoVPN-Admin/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Gateway   Gateway
	Directory Directory
	VPN       VPN
	Secret    Secret
	Schedule  Schedule
	Jobs      Jobs
}

// Webserver implement webserver settings.
type Webserver struct {
	Port         int    // listening port for the webserver
	ShutDownTime int    // wait time for shutdown
	URL          string // base url for the webserver
}

// Gateway holds the remote gateway connection settings.
type Gateway struct {
	BaseURL    string        // gateway base url, e.g. https://192.168.1.1
	Username   string        // admin username
	Password   string        // admin password
	SkipVerify bool          // skip TLS verification for self-signed device certs
	Timeout    time.Duration // per-request timeout
}

// Directory holds the directory service settings for identity sync.
type Directory struct {
	Enabled            bool
	Host               string
	Port               int
	UseSSL             bool
	UseTLS             bool
	SkipVerify         bool
	BindDN             string
	BindPassword       string
	DepartmentBaseDN   string
	DepartmentFilter   string
	PersonBaseDN       string
	PersonFilter       string
	SuperAdminUsername string
	Timeout            int // connection timeout in seconds
}

// VPN holds the settings embedded in generated client configurations.
type VPN struct {
	ServerHost        string
	ServerPort        int
	Protocol          string
	CACert            string
	DefaultExpiryDays int
}

// Secret holds encryption-at-rest settings.
type Secret struct {
	// EncryptionKey is the passphrase protecting stored credentials.
	EncryptionKey string
}

// Schedule holds the cron specs and thresholds for the periodic sweeps.
type Schedule struct {
	Reconcile     string        // account reconcile sweep spec
	DirectorySync string        // full directory sync spec
	Expiry        string        // daily expiry sweep spec
	StaleAfter    time.Duration // staleness threshold for transitional statuses
}

// Jobs holds the background dispatcher settings.
type Jobs struct {
	Workers       int
	QueueSize     int
	DeleteRetries int
}
