package chat

import "math/rand"

// endpointSet is an ordered list of connection URIs with a rotation offset.
// The offset starts at a random position and advances before every pick, so
// the first attempt uses (start+1) mod N rather than the start itself.
type endpointSet struct {
	urls   []string
	offset int
}

func newEndpointSet(urls []string) *endpointSet {
	return &endpointSet{
		urls:   urls,
		offset: rand.Intn(len(urls)),
	}
}

// next advances the rotation and returns the endpoint for the next attempt.
func (e *endpointSet) next() string {
	e.offset = (e.offset + 1) % len(e.urls)
	return e.urls[e.offset]
}
