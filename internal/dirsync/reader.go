// Package dirsync synchronizes the local identity store with the external
// directory service. The directory is the source of truth for organizational
// structure; local rows converge toward it on every full sync.
package dirsync

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// Config holds directory connection and search settings.
type Config struct {
	// Host is the directory server hostname or IP address.
	Host string
	// Port is the directory server port (typically 389 for LDAP, 636 for LDAPS).
	Port int
	// UseSSL enables LDAPS on connect.
	UseSSL bool
	// UseTLS enables StartTLS to upgrade a plain connection.
	UseTLS bool
	// SkipVerify skips TLS certificate verification (insecure, for testing only).
	SkipVerify bool
	// BindDN is the distinguished name of the service account used for
	// searches. Empty means anonymous bind.
	BindDN string
	// BindPassword is the password for the bind DN.
	BindPassword string
	// DepartmentBaseDN is the base DN for the department subtree search.
	DepartmentBaseDN string
	// DepartmentFilter selects department candidate entries.
	DepartmentFilter string
	// PersonBaseDN is the base DN for the person subtree search.
	PersonBaseDN string
	// PersonFilter selects person candidate entries.
	PersonFilter string
	// SuperAdminUsername is granted staff and superuser flags on every sync.
	SuperAdminUsername string
	// Timeout is the connection timeout in seconds.
	Timeout int
}

// departmentAttrs are the only attributes requested for department entries:
// cn carries the external numeric id, ou the name.
var departmentAttrs = []string{"cn", "ou", "description"}

// personAttrs are the only attributes requested for person entries.
var personAttrs = []string{"cn", "sn", "mail", "employeeNumber", "departmentNumber"}

// Reader is a read-only client over the directory protocol. It has no
// knowledge of local entities.
type Reader struct {
	config *Config
}

// NewReader creates a directory reader, filling in filter defaults.
func NewReader(config *Config) *Reader {
	if config.DepartmentFilter == "" {
		config.DepartmentFilter = "(objectClass=groupOfNames)"
	}

	if config.PersonFilter == "" {
		config.PersonFilter = "(objectClass=inetOrgPerson)"
	}

	if config.Timeout == 0 {
		config.Timeout = 10
	}

	return &Reader{config: config}
}

// Connect establishes a connection to the directory server.
func (r *Reader) Connect() (*ldap.Conn, error) {
	hostPort := net.JoinHostPort(r.config.Host, strconv.Itoa(r.config.Port))

	var ldapURL string
	if r.config.UseSSL {
		ldapURL = "ldaps://" + hostPort
	} else {
		ldapURL = "ldap://" + hostPort
	}

	var tlsConfig *tls.Config
	if r.config.UseSSL || r.config.UseTLS {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: r.config.SkipVerify, //nolint:gosec // skipping verifying tls is ok
			ServerName:         r.config.Host,
		}
	}

	conn, err := ldap.DialURL(ldapURL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory server: %w", err)
	}

	if !r.config.UseSSL && r.config.UseTLS {
		if errStartTLS := conn.StartTLS(tlsConfig); errStartTLS != nil {
			if errClose := conn.Close(); errClose != nil {
				log.Error().Err(errClose).Msg("failed to close directory connection")
			}

			return nil, fmt.Errorf("failed to start TLS: %w", errStartTLS)
		}
	}

	if r.config.Timeout > 0 {
		conn.SetTimeout(time.Duration(r.config.Timeout) * time.Second)
	}

	return conn, nil
}

// bindService binds with the configured service account. Without credentials
// the search proceeds with the anonymous bind, with a warning.
func (r *Reader) bindService(conn *ldap.Conn) error {
	if r.config.BindDN == "" {
		log.Warn().Msg("no directory bind credentials configured, using anonymous bind")
		return nil
	}

	if err := conn.Bind(r.config.BindDN, r.config.BindPassword); err != nil {
		return fmt.Errorf("failed to bind with service account: %w", err)
	}

	return nil
}

// Fetch connects, binds and runs both subtree searches, returning department
// and person candidate entries. Implements the Directory interface consumed
// by the reconciler.
func (r *Reader) Fetch() (departments, people []*ldap.Entry, err error) {
	conn, err := r.Connect()
	if err != nil {
		return nil, nil, err
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close directory connection")
		}
	}()

	if err = r.bindService(conn); err != nil {
		return nil, nil, err
	}

	departments, err = r.search(conn, r.config.DepartmentBaseDN, r.config.DepartmentFilter, departmentAttrs)
	if err != nil {
		return nil, nil, fmt.Errorf("department search failed: %w", err)
	}

	people, err = r.search(conn, r.config.PersonBaseDN, r.config.PersonFilter, personAttrs)
	if err != nil {
		return nil, nil, fmt.Errorf("person search failed: %w", err)
	}

	return departments, people, nil
}

// search runs a subtree search requesting only the given attributes.
func (r *Reader) search(conn *ldap.Conn, baseDN, filter string, attrs []string) ([]*ldap.Entry, error) {
	searchRequest := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, // Size limit
		r.config.Timeout,
		false,
		filter,
		attrs,
		nil,
	)

	searchResult, err := conn.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search directory: %w", err)
	}

	return searchResult.Entries, nil
}
