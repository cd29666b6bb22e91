// Package registry implements the plugin submission and release-lifecycle
// workflow of the shelf registry.
//
// # Workflow
//
// Submission is two-phase. Stage validates an uploaded archive and reports a
// preview with advisory success/warning/error lists without persisting
// anything; the caller reviews the advisories and then Commits, which
// authenticates against the plugin id's secret key, publishes the archive to
// the blob store, and records the release. Retire unpublishes, either softly
// (releases stay as rows, off-shelf) or permanently (identity, releases, and
// remote files are all removed).
//
// # Entities
//
// PluginIdentity is the durable record of a plugin id, its author, and its
// secret-key digest; PluginRelease is one versioned, publishable artifact
// belonging to exactly one identity. At most one release per plugin id is
// on-shelf at a time, and immediately after a Commit it is the version just
// committed.
//
// # Authentication
//
// Authorship control is one shared secret per plugin id. The first committer
// of an unseen id claims it: authentication trivially succeeds and the
// supplied secret's digest is registered. Every later Commit or Retire must
// present a secret whose digest matches.
package registry
