package orders

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	trackingAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
	trackingRandomLength = 6
)

var trackingRadix = big.NewInt(int64(len(trackingAlphabet)))

// NewTrackingID returns an upper-case base36 millisecond timestamp followed
// by six random base36 characters.
func NewTrackingID(now time.Time) (string, error) {
	return trackingID(now.UnixMilli())
}

func trackingID(millis int64) (string, error) {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(millis, 36))
	for i := 0; i < trackingRandomLength; i++ {
		n, err := rand.Int(rand.Reader, trackingRadix)
		if err != nil {
			return "", err
		}
		b.WriteByte(trackingAlphabet[n.Int64()])
	}
	return strings.ToUpper(b.String()), nil
}

// TrackingGenerator issues tracking ids whose timestamp part never repeats
// within the process: a call landing in an already used millisecond takes
// the next one.
type TrackingGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewTrackingGenerator builds a generator reading the provided clock.
func NewTrackingGenerator(now func() time.Time) *TrackingGenerator {
	if now == nil {
		now = time.Now
	}
	return &TrackingGenerator{now: now}
}

// Next returns a fresh tracking id.
func (g *TrackingGenerator) Next() (string, error) {
	g.mu.Lock()
	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis
	g.mu.Unlock()
	return trackingID(millis)
}

// NormalizeTrackingID trims and upper-cases user input.
func NormalizeTrackingID(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
