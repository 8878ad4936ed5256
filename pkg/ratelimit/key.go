package ratelimit

import "net/http"

// KeyFunc extracts the limiting key of a request. Requests with an empty
// key are not limited.
type KeyFunc func(*http.Request) string
