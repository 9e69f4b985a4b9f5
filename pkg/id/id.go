package id

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ID is a 128-bit, lexicographically sortable record identifier: a 48-bit
// millisecond timestamp followed by 80 bits of monotonic entropy (ULID).
type ID ulid.ULID

// Zero is the empty ID.
var Zero ID

// Bytes returns the raw 16-byte representation.
func (i ID) Bytes() []byte { b := make([]byte, 16); copy(b, i[:]); return b }

// String returns the 26-character Crockford base32 form.
func (i ID) String() string { return ulid.ULID(i).String() }

// Time returns the millisecond timestamp embedded in the ID.
func (i ID) Time() time.Time { return ulid.Time(ulid.ULID(i).Time()).UTC() }

// IsZero reports whether i is the empty ID.
func (i ID) IsZero() bool { return i == Zero }

// Compare returns -1, 0, 1 based on lexical comparison.
func (i ID) Compare(other ID) int { return ulid.ULID(i).Compare(ulid.ULID(other)) }

// Parse decodes the string form produced by String.
func Parse(s string) (ID, error) {
	u, err := ulid.Parse(s)
	if err != nil {
		return Zero, err
	}
	return ID(u), nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu      sync.Mutex
	lastMs  int64
	entropy io.Reader // ulid.Monotonic; not safe for concurrent use, guarded by mu
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If the clock goes backwards it keeps using lastMs so
// entropy keeps increasing. If entropy overflows within the same millisecond,
// it waits for the next one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	for {
		u, err := ulid.New(uint64(ms), g.entropy)
		if err == nil {
			g.lastMs = ms
			return ID(u)
		}
		if !errors.Is(err, ulid.ErrMonotonicOverflow) {
			panic("id: entropy source failed: " + err.Error())
		}
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = NowMs()
		}
	}
}
