package integration

import (
	"fmt"
	"sync/atomic"
)

// TestPassword satisfies the registration password policy.
const TestPassword = "TestPass1@"

var userSeq atomic.Int64

// UniqueUser returns credentials that cannot collide across tests. The
// username stays within the 3-20 lowercase character limit.
func UniqueUser(prefix string) (username, email string) {
	n := userSeq.Add(1)
	username = fmt.Sprintf("%s%d", prefix, n)
	email = fmt.Sprintf("%s@example.com", username)
	return
}
