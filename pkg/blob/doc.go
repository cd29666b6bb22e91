// Package blob publishes released plugin archives to remote object storage.
//
// Publisher is the workflow's view of the store: upload a local file under a
// remote key, delete a single key, or delete everything under a prefix. The
// S3 implementation speaks to AWS S3 or any S3-compatible endpoint (MinIO,
// COS) via aws-sdk-go-v2. Deleting a key that is already absent is not an
// error.
package blob
