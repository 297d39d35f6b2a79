// Package id generates the identifiers stamped on trade records.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

// The entropy source is seeded once from crypto/rand; ulid.Monotonic
// keeps ids minted within the same millisecond strictly increasing.
func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a fresh ULID string. Records sort chronologically by id,
// so the trade log and the journal's primary key stay in insertion
// order without a separate sequence column.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Reachable only if the clock leaves the ULID epoch range.
		panic(err)
	}
	return id.String()
}
