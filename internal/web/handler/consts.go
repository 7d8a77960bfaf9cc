package handler

const (
	// RootPath is the root path of a route group.
	RootPath = "/"

	// UserHeader carries the authenticated username, injected by the
	// upstream auth proxy. Requests without it are unauthenticated.
	UserHeader = "X-Auth-User"
)
