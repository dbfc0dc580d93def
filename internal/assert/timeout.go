package assert

import "time"

// timeout is the maximum amount of time asserts that wait on some event will
// block for.
const timeout = 30 * time.Second
