package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("toml config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrGatewayBaseURLEmpty error if the gateway base URL was not configured.
	ErrGatewayBaseURLEmpty = errors.New("toml config gateway.baseurl can not be empty")

	// ErrEncryptionKeyEmpty error if the credential encryption key was not configured.
	ErrEncryptionKeyEmpty = errors.New("toml config secret.encryptionkey can not be empty")
)
