// Package main provides the entry point for the VPN account management
// application. It runs a web server using the Fiber framework through which
// users request, renew and delete PPP/VPN accounts on an iKuai gateway. The
// application uses gorm for data persistence, mirrors identity data from an
// LDAP directory and reconciles local state against the gateway on a
// schedule.
package main
