package account

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/tokenauth/core"
	"github.com/layer-3/tokenauth/ports"
)

// ErrUsernameTaken is returned when registering a duplicate username
var ErrUsernameTaken = errors.New("username already registered")

type memoryAccount struct {
	passwordHash string
	profile      core.Profile
}

type linkKey struct {
	provider string
	handle   string
}

// MemoryDirectory keeps accounts in process memory
type MemoryDirectory struct {
	mu         sync.RWMutex
	accounts   map[core.Identity]*memoryAccount
	byUsername map[string]core.Identity
	byEmail    map[string]core.Identity
	links      map[linkKey]core.Identity
}

var (
	_ ports.IdentityVerifier = (*MemoryDirectory)(nil)
	_ ports.IdentityResolver = (*MemoryDirectory)(nil)
	_ ports.AccountDirectory = (*MemoryDirectory)(nil)
)

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		accounts:   make(map[core.Identity]*memoryAccount),
		byUsername: make(map[string]core.Identity),
		byEmail:    make(map[string]core.Identity),
		links:      make(map[linkKey]core.Identity),
	}
}

// Register creates a password account
func (d *MemoryDirectory) Register(ctx context.Context, username, password string, profile core.Profile) (core.Identity, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.byUsername[username]; taken {
		return "", ErrUsernameTaken
	}
	return d.insertLocked(username, hash, profile), nil
}

// Remove deletes an account and its links
func (d *MemoryDirectory) Remove(id core.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()

	acc, ok := d.accounts[id]
	if !ok {
		return
	}
	delete(d.accounts, id)
	delete(d.byUsername, acc.profile[FieldUsername])
	delete(d.byEmail, normaliseEmail(acc.profile[FieldEmail]))
	for k, linked := range d.links {
		if linked == id {
			delete(d.links, k)
		}
	}
}

// Verify checks a username/password pair
func (d *MemoryDirectory) Verify(ctx context.Context, username, secret string) (core.Identity, error) {
	d.mu.RLock()
	id, ok := d.byUsername[username]
	var hash string
	if ok {
		hash = d.accounts[id].passwordHash
	}
	d.mu.RUnlock()

	if !checkPassword(hash, secret) {
		return "", core.ErrInvalidCredentials
	}
	return id, nil
}

// ResolveOrCreate returns the account linked to ext, linking an account with
// the same email or creating a new one when needed
func (d *MemoryDirectory) ResolveOrCreate(ctx context.Context, ext core.ExternalIdentity) (core.Identity, error) {
	key := linkKey{provider: ext.Provider, handle: ext.Handle}

	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.links[key]; ok {
		return id, nil
	}

	id, ok := d.byEmail[normaliseEmail(ext.Profile[FieldEmail])]
	if !ok {
		username := usernameFor(ext)
		if _, taken := d.byUsername[username]; taken {
			username = ext.Provider + ":" + ext.Handle
		}
		id = d.insertLocked(username, "", ext.Profile)
	}

	d.links[key] = id
	return id, nil
}

// Profile returns the account's profile
func (d *MemoryDirectory) Profile(ctx context.Context, id core.Identity) (core.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	acc, ok := d.accounts[id]
	if !ok {
		return nil, core.ErrIdentityNotFound
	}

	out := make(core.Profile, len(acc.profile))
	for k, v := range acc.profile {
		out[k] = v
	}
	return out, nil
}

func (d *MemoryDirectory) insertLocked(username, hash string, profile core.Profile) core.Identity {
	id := core.Identity(uuid.NewString())

	stored := core.Profile{
		FieldUsername:  username,
		FieldEmail:     profile[FieldEmail],
		FieldFirstName: profile[FieldFirstName],
		FieldLastName:  profile[FieldLastName],
	}

	d.accounts[id] = &memoryAccount{passwordHash: hash, profile: stored}
	d.byUsername[username] = id
	if email := normaliseEmail(stored[FieldEmail]); email != "" {
		d.byEmail[email] = id
	}
	return id
}
