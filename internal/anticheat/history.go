package anticheat

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog"

	"github.com/rbright/wakeproof/internal/textsim"
)

const (
	// DefaultHistorySize is the number of recent transcripts remembered per user.
	DefaultHistorySize = 7

	minCacheBytes = 512 * 1024
)

// History remembers each user's most recent normalized transcripts in process
// memory so exact replays can be flagged.
//
// Every window slot is its own cache entry holding a digest of the normalized
// transcript, plus one counter entry per user. Entries stay a fixed few dozen
// bytes no matter how long the transcript is, well under freecache's
// per-entry limit of 1/1024 of the cache.
type History struct {
	mu     sync.Mutex
	cache  *freecache.Cache
	size   int
	logger zerolog.Logger
}

// NewHistory creates a per-process history window of size entries per user.
func NewHistory(size int, cacheBytes int, logger zerolog.Logger) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if cacheBytes < minCacheBytes {
		cacheBytes = minCacheBytes
	}
	return &History{cache: freecache.NewCache(cacheBytes), size: size, logger: logger}
}

// CheckDuplicate reports whether transcript matches one of the user's recent
// transcripts. Non-duplicates are appended, evicting the oldest entry.
func (h *History) CheckDuplicate(userKey, transcript string) bool {
	digest := sha256.Sum256([]byte(textsim.Normalize(transcript)))

	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.count(userKey)
	filled := min(count, uint64(h.size))
	for i := uint64(0); i < filled; i++ {
		stored, err := h.cache.Get(slotKey(userKey, int(i)))
		if err == nil && bytes.Equal(stored, digest[:]) {
			return true
		}
	}

	slot := int(count % uint64(h.size))
	if err := h.cache.Set(slotKey(userKey, slot), digest[:], 0); err != nil {
		h.logger.Warn().Err(err).Str("user", userKey).Msg("transcript history write failed")
		return false
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], count+1)
	if err := h.cache.Set(countKey(userKey), next[:], 0); err != nil {
		h.logger.Warn().Err(err).Str("user", userKey).Msg("transcript history write failed")
	}
	return false
}

func (h *History) count(userKey string) uint64 {
	raw, err := h.cache.Get(countKey(userKey))
	if err != nil || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func countKey(userKey string) []byte {
	return []byte(userKey + "\x00n")
}

func slotKey(userKey string, slot int) []byte {
	return []byte(userKey + "\x00" + strconv.Itoa(slot))
}
