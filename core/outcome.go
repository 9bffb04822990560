package core

// OutcomeKind tags the variant held by an Outcome
type OutcomeKind int

const (
	// KindUnauthenticated is the zero value so that an uninitialised Outcome
	// never grants access.
	KindUnauthenticated OutcomeKind = iota
	KindAuthenticated
	KindError
)

func (k OutcomeKind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	case KindError:
		return "error"
	default:
		return "unauthenticated"
	}
}

// Outcome is the result of an authentication attempt.
//
// Exactly one of the variants is meaningful, selected by Kind:
//   - Authenticated: Identity is set, Token is set when a credential exchange issued one.
//   - Unauthenticated: Challenge names the scheme the client should retry with.
//   - Error: Err holds a failure that must not be reported as a plain rejection.
type Outcome struct {
	Kind      OutcomeKind
	Identity  Identity
	Token     string
	Challenge string
	Err       error
}

// Authenticated builds a successful outcome
func Authenticated(id Identity) Outcome {
	return Outcome{Kind: KindAuthenticated, Identity: id}
}

// Unauthenticated builds a rejection carrying a challenge hint
func Unauthenticated(challenge string) Outcome {
	return Outcome{Kind: KindUnauthenticated, Challenge: challenge}
}

// Failed builds an error outcome
func Failed(err error) Outcome {
	return Outcome{Kind: KindError, Err: err}
}

// IsAuthenticated reports whether the outcome grants access
func (o Outcome) IsAuthenticated() bool {
	return o.Kind == KindAuthenticated
}

// WithToken returns a copy of the outcome carrying an issued token value
func (o Outcome) WithToken(value string) Outcome {
	o.Token = value
	return o
}
