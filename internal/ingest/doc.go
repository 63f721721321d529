// Package ingest loads provider feed files dropped into the inbox directory.
//
// Each YAML feed names an account and publication and carries entries with
// optional tagger output. Files are recorded in the feed load table, their
// entries are saved through the editorial service, and the file is moved to
// processed/ or rejected/. A Watcher reacts to fsnotify events and rescans
// the inbox periodically so files missed by the notifier still load.
package ingest
