// Package workflow runs the daemon's background loops.
//
// The Manager owns two lanes. The schedule lane wakes every poll interval,
// refreshes the active transmission queues whose load frequency is due, and,
// when auto transmission is enabled, transmits every queue holding Scheduled
// items. The feed lane runs the inbox watcher so provider feeds are loaded as
// they arrive. A failed cycle backs off for the error retry interval and
// raises an error notification.
//
// Status exposes cycle counters for the IPC and HTTP status endpoints.
package workflow
