// Package id provides centralized ID generation for the backend.
//
// All IDs are ULIDs:
//   - Lexicographic sortability: artifacts and traces sort by creation time
//   - Prefixed types: type-specific prefixes for debugging (art_*, req_*)
//   - Type safety: separate types prevent ID misuse
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ArtifactID identifies a temporary transfer artifact
type ArtifactID string

// RequestID identifies an API request
type RequestID string

const (
	ArtifactPrefix = "art"
	RequestPrefix  = "req"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewArtifactID generates a new artifact ID. Artifact IDs are used as file
// names in the scratch directory, so they never contain separators.
func NewArtifactID() ArtifactID {
	return ArtifactID(Default().GenerateWithPrefix(ArtifactPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

func (id ArtifactID) String() string { return string(id) }
func (id RequestID) String() string  { return string(id) }
