// internal/gateway/identity.go
//
// Caller identity, supplied out-of-band by the upstream cloud-session
// bridge.  The bridge terminates the real-time protocol, verifies the
// encrypted channel, and forwards each named operation here with three
// headers:
//
//	X-Gallery-Client  – stable per-connection client id (always set)
//	X-Gallery-User    – username, empty when unauthenticated
//	X-Gallery-Secure  – "1" when the channel is encrypted and verified
//
// The gateway trusts these headers; it must only be reachable from the
// bridge, never exposed directly.
package gateway

import "net/http"

// Identity describes the caller of one operation.
type Identity struct {
	ClientID string
	Username string
	Secure   bool
}

func identityFromRequest(r *http.Request) Identity {
	id := Identity{
		ClientID: r.Header.Get("X-Gallery-Client"),
		Username: r.Header.Get("X-Gallery-User"),
		Secure:   r.Header.Get("X-Gallery-Secure") == "1",
	}
	if id.ClientID == "" {
		// Degraded bridge; the remote address still bounds one code per
		// connection.
		id.ClientID = r.RemoteAddr
	}
	return id
}
