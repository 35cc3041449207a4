package core

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/luciancaetano/duplexnet"
)

// newConnID generates a random connection identifier, retrying until it
// does not collide with any currently registered id. Random ids need no
// coordination between callers; with UUIDs the retry loop is theoretical.
func newConnID(taken func(string) bool) string {
	for {
		id := uuid.New().String()
		if !taken(id) {
			return id
		}
	}
}

// newCallID generates a random correlation id in [1, 2^31-1], retrying
// until it does not collide with any currently pending call. Id 0 is
// reserved for fire-and-forget frames and is never produced.
func newCallID(taken func(int32) bool) int32 {
	for {
		id := rand.Int31n(duplexnet.MaxCorrelationID) + 1
		if !taken(id) {
			return id
		}
	}
}
