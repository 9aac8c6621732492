package pipeline

import "time"

// pumpWaitTimeout bounds how long Producer.Pump blocks per
// DequeueWait poll before rechecking ctx cancellation.
const pumpWaitTimeout = 200 * time.Millisecond
