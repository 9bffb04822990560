package ports

// TokenGenerator produces opaque, unguessable token values
type TokenGenerator interface {
	Generate() (string, error)
}
