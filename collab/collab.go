package collab

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// seed tags for deterministic address derivation.
// these must match the external program's seed tuples exactly.
const (
	SeedProfile = "user"
	SeedProject = "project"
	SeedRequest = "collab_request"
)

// comparable
type Identity [32]byte

func ParseIdentity(identityStr string) (Identity, error) {
	s := strings.TrimPrefix(strings.TrimSpace(identityStr), "0x")
	identityBytes, err := hex.DecodeString(s)
	if err != nil {
		return Identity{}, err
	}
	if len(identityBytes) != 32 {
		return Identity{}, errors.New("Identity must be 32 bytes")
	}
	return Identity(identityBytes), nil
}

func RequireIdentity(identityStr string) Identity {
	identity, err := ParseIdentity(identityStr)
	if err != nil {
		panic(err)
	}
	return identity
}

func (self Identity) Bytes() []byte {
	return self[0:32]
}

func (self Identity) IsZero() bool {
	return self == Identity{}
}

func (self Identity) String() string {
	return "0x" + hex.EncodeToString(self[0:32])
}

func (self Identity) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(self.String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Identity) UnmarshalJSON(src []byte) error {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return fmt.Errorf("invalid identity: %s", string(src))
	}
	identity, err := ParseIdentity(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = identity
	return nil
}

// comparable
type Address [32]byte

func ParseAddress(addressStr string) (Address, error) {
	s := strings.TrimPrefix(strings.TrimSpace(addressStr), "0x")
	addressBytes, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, err
	}
	if len(addressBytes) != 32 {
		return Address{}, errors.New("Address must be 32 bytes")
	}
	return Address(addressBytes), nil
}

func RequireAddress(addressStr string) Address {
	address, err := ParseAddress(addressStr)
	if err != nil {
		panic(err)
	}
	return address
}

func (self Address) Bytes() []byte {
	return self[0:32]
}

func (self Address) IsZero() bool {
	return self == Address{}
}

func (self Address) String() string {
	return "0x" + hex.EncodeToString(self[0:32])
}

func (self Address) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(self.String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Address) UnmarshalJSON(src []byte) error {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return fmt.Errorf("invalid address: %s", string(src))
	}
	address, err := ParseAddress(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = address
	return nil
}

// DeriveAddress is a pure function from a tagged seed tuple to a storage address.
// The same (kind, seeds) always derives the same address, which both locates
// existing entities and pre-computes where a new entity will live.
// Each part is length-prefixed so that adjacent seeds cannot collide by
// concatenation.
func DeriveAddress(kind string, seeds ...[]byte) Address {
	h := sha256.New()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(kind)))
	h.Write(prefix[:])
	h.Write([]byte(kind))
	for _, seed := range seeds {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(seed)))
		h.Write(prefix[:])
		h.Write(seed)
	}
	return Address(h.Sum(nil))
}

// one profile per identity
func ProfileAddress(identity Identity) Address {
	return DeriveAddress(SeedProfile, identity.Bytes())
}

// one project per (creator, name)
func ProjectAddress(creator Identity, name string) Address {
	return DeriveAddress(SeedProject, creator.Bytes(), []byte(name))
}

// at most one live request per (sender, project)
func RequestAddress(sender Identity, project Address) Address {
	return DeriveAddress(SeedRequest, sender.Bytes(), project.Bytes())
}

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}
