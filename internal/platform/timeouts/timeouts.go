// Package timeouts defines shared timeout constants used across the runtime.
package timeouts

import "time"

// Delivery caps one outbound reminder delivery call.
const Delivery = 10 * time.Second

// LockTTL bounds how long a distributed tick lock survives a crashed holder.
// A live holder keeps renewing it.
const LockTTL = time.Minute

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second
