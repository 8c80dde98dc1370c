package api

import "errors"

var (
	errMethodNotAllowed = errors.New("method not allowed")
	errTokenRequired    = errors.New("upload token required")
	errTokenInvalid     = errors.New("upload token invalid or expired")
	errAdminDisabled    = errors.New("administrative access not configured")
	errAdminKeyInvalid  = errors.New("admin key invalid")
	errFeatureDisabled  = errors.New("video uploads are disabled")
)
