package testfixtures

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator yields a reproducible sequence of UUID strings, suitable as
// session identifiers and tokens in tests.
type IDGenerator struct {
	mu        sync.Mutex
	namespace uuid.UUID
	counter   uint64
}

// NewIDGenerator returns a generator seeded by name. The same name always
// produces the same sequence.
func NewIDGenerator(name string) *IDGenerator {
	if name == "" {
		name = "id"
	}
	return &IDGenerator{namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return uuid.NewSHA1(g.namespace, []byte(strconv.FormatUint(g.counter, 10))).String()
}

// NextFunc exposes Next for constructor injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return uuid.NewString
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
