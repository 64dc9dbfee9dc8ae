package naming

import (
	"sync"
)

// Claims tracks which source owns each output path in a run. Sources that
// differ only by extension (clip.avi, clip.mp4) map to the same container;
// the first claimant keeps it. All methods are goroutine-safe.
type Claims struct {
	mu     sync.Mutex
	owners map[string]string // output path → source path that owns it
}

// NewClaims creates a ready-to-use claim set.
func NewClaims() *Claims {
	return &Claims{owners: make(map[string]string)}
}

// Claim records source as the owner of output. It returns the existing
// owner and false when output is already claimed by another source.
func (c *Claims) Claim(source, output string) (owner string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, exists := c.owners[output]
	if !exists || owner == source {
		c.owners[output] = source
		return source, true
	}
	return owner, false
}
