package types

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is a UUID wrapper for type safety
type ID string

// NewID generates a new random ID
func NewID() ID {
	return ID(uuid.New().String())
}

// NewDeterministicID generates a deterministic ID based on namespace and name.
// Seed data uses it so reference rows keep stable IDs across environments.
func NewDeterministicID(namespace, name string) ID {
	ns := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return ID(uuid.NewSHA1(ns, []byte(namespace+":"+name)).String())
}

// ParseID parses a string into an ID
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID: %w", err)
	}
	return ID(u.String()), nil
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsZero checks if the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// Ptr returns a pointer to the ID, or nil for the zero ID.
func (id ID) Ptr() *ID {
	if id.IsZero() {
		return nil
	}
	return &id
}

// Deref returns the ID behind p, or the zero ID when p is nil.
func Deref(p *ID) ID {
	if p == nil {
		return ""
	}
	return *p
}

// Value implements driver.Valuer for database serialization
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}
	return string(id), nil
}

// Scan implements sql.Scanner for database deserialization
func (id *ID) Scan(value interface{}) error {
	if value == nil {
		*id = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*id = ID(v)
	case []byte:
		*id = ID(string(v))
	case [16]byte:
		*id = ID(uuid.UUID(v).String())
	default:
		return fmt.Errorf("cannot scan %T into ID", value)
	}
	return nil
}
