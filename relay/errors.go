package relay

import "errors"

var errInvalidUpstream = errors.New("upstream must be an absolute http(s) URL")
