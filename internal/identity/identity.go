// Package identity supplies player identities. Guests are generated
// locally with no server registration.
package identity

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

var ErrEmptyName = errors.New("display name must not be empty")

const maxNameLen = 24

var avatars = []string{
	"cat", "dog", "fox", "owl", "panda", "koala", "tiger", "whale",
	"raccoon", "penguin", "sloth", "axolotl",
}

type Identity struct {
	ID     string
	Name   string
	Avatar string
}

// NewGuest mints a local guest identity: random id, random avatar.
func NewGuest(name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrEmptyName
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return Identity{
		ID:     uuid.NewString(),
		Name:   name,
		Avatar: avatars[rand.Intn(len(avatars))],
	}, nil
}
