// Package api exposes the plugin registry over HTTP.
//
// The surface mirrors the submission workflow: uploadPlugin stages an
// archive and returns an advisory preview, commitPlugin publishes the
// staged release, deletePlugin retires a plugin, getPlugins lists what is
// on the shelf, and image serves published logos. Every JSON response is
// wrapped in the {code, message, data} envelope.
package api
