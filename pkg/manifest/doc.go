// Package manifest unpacks staged plugin archives and parses their declared
// metadata.
//
// A plugin archive is a zip with a manifest (plugin.yaml or plugin.json) at
// its root declaring plugin_id, name, version, plugin_type, and description.
// Two optional artifacts ride along: a document, given either as literal text
// or as the path of a text file inside the package, and a logo.png at the
// package root, which is copied out to the public logo directory under a
// collision-proof name.
//
// The extractor is stateless; it operates on a scratch directory the caller
// owns and must remove after use, success or failure. The copied-out logo is
// the one deliberate escape from the scratch directory's lifetime.
package manifest
