package onion

import (
	"fmt"
	"math/rand"

	"github.com/cashew-network/cashew-node/pkg/cashewerr"
	"github.com/cashew-network/cashew-node/pkg/identity"
)

// DefaultPathLength is the number of relay hops selected before the
// destination (so a built circuit has DefaultPathLength+1 layers).
const DefaultPathLength = 3

// SelectPath draws pathLength distinct relay hops from candidates without
// replacement, excluding self and destination, then appends destination as
// the final hop. Candidates must contain at least pathLength eligible
// entries or an error is returned.
func SelectPath(candidates []Hop, self, destination identity.NodeID, pathLength int) ([]Hop, error) {
	if pathLength <= 0 {
		pathLength = DefaultPathLength
	}

	eligible := make([]Hop, 0, len(candidates))
	for _, c := range candidates {
		if c.NodeID == self || c.NodeID == destination {
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) < pathLength {
		return nil, fmt.Errorf("%w: need %d relay candidates, have %d", cashewerr.ErrResource, pathLength, len(eligible))
	}

	rand.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	path := make([]Hop, 0, pathLength+1)
	seen := make(map[identity.NodeID]bool, pathLength)
	for _, hop := range eligible {
		if len(path) == pathLength {
			break
		}
		if seen[hop.NodeID] {
			continue
		}
		seen[hop.NodeID] = true
		path = append(path, hop)
	}

	destHop, ok := findHop(candidates, destination)
	if !ok {
		return nil, fmt.Errorf("%w: destination %s not among candidates", cashewerr.ErrNotFound, destination)
	}
	path = append(path, destHop)

	return path, nil
}

func findHop(candidates []Hop, id identity.NodeID) (Hop, bool) {
	for _, c := range candidates {
		if c.NodeID == id {
			return c, true
		}
	}
	return Hop{}, false
}
