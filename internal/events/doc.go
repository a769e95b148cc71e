// Package events publishes notifications about completed mailbox work.
//
// Two event types exist: index.completed after a backfill run and
// day.hydrated after each hydrated day. Events are published on NATS
// JetStream when NATS_URL is configured and dropped by Noop otherwise.
package events
