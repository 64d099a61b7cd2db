// Package jobs holds the in-memory job registry and the per-job event hub.
//
// The registry owns every live job record and serializes all mutations under a
// single lock; the extractor driver, the HTTP handlers, and the retention
// sweeper only ever touch jobs through its methods. Each job carries one hub
// that fans state changes out to subscribed push channels, delivering a
// connected snapshot frame before any delta and closing all sinks a short
// grace delay after the terminal frame.
package jobs
