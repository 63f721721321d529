// Package events publishes syndication lifecycle events.
//
// The Redis publisher stores each event as a hash under
// syndicate:{namespace}:event:{id} and broadcasts the JSON encoding on
// syndicate:{namespace}:events so downstream consumers (buyer portals,
// dashboards) can react to saves, publishes, and transmissions. Noop is used
// when events are disabled.
package events
