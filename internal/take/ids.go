package take

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator はテイク・コメント・通報のIDを生成する。
type IDGenerator interface {
	NewID(t time.Time) string
}

// ulidGenerator は単調増加エントロピーでULIDを生成する。
// ulid.MonotonicReaderは並行利用できないためmuで保護する。
type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator は同一ミリ秒内でも生成順に辞書順となるULID生成器を返す。
func NewULIDGenerator() IDGenerator {
	return &ulidGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGenerator) NewID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
