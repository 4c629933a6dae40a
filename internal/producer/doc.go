// Package producer runs the periodic background producers that announce
// events on the relay channel.
//
// The main components are:
//
//   - [Scheduler]: runs [Task]s on their own intervals through a worker pool
//   - [Publisher]: encodes an [Event] as JSON and publishes it on one channel
//   - [Client]: pooled HTTP client for producers that reach external services
//   - [RunResult] and [Status]: the outcome of one run and the running record
//     of each producer
//
// Callers configure producers through the root novaos package.
package producer
