package core

import "time"

// DefaultValidityWindow is how long a token stays valid after its last use
const DefaultValidityWindow = 3600 * time.Second

// Expiry is the sliding-expiration policy applied on every validation.
type Expiry struct {
	// Window is measured from the token's last successful use.
	Window time.Duration

	// MaxLifetime caps a token's age since issuance regardless of use.
	// Zero disables the cap.
	MaxLifetime time.Duration
}

// Fresh reports whether tok may still be used at now.
//
// Elapsed time is computed as now minus LastUsedAt. Anything at or beyond the
// window is expired; anything below it, including zero and the negative values
// produced by small clock skew, is fresh.
func (e Expiry) Fresh(tok Token, now time.Time) bool {
	window := e.Window
	if window <= 0 {
		window = DefaultValidityWindow
	}

	if now.Sub(tok.LastUsedAt) >= window {
		return false
	}

	if e.MaxLifetime > 0 && now.Sub(tok.CreatedAt) >= e.MaxLifetime {
		return false
	}

	return true
}
