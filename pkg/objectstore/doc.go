/*
Package objectstore is a typed adapter over an S3-compatible object
store (MinIO or any S3-API-compatible endpoint), used by the sync
engine, lock manager, and leadership manager to read and write the
six object kinds rooted at projects/{canonical_id}/:

  - sqlite/claude-mem.db              (snapshot)
  - sqlite/claude-mem.db.sha256       (hash text)
  - sqlite/manifest.json              (manifest)
  - locks/active.lock                 (lock)
  - leadership/lease.json             (lease)
  - leadership/audit/{ts}-{node}.json (audit entry)

It exposes get/put/head/download/upload and nothing else: no retry
policy lives here, callers choose how to react to a classified error
(ErrNotFound, ErrTransport, ErrServer). Signature version v4 is used
throughout (github.com/minio/minio-go/v7's default); region defaults
to us-east-1 but is configurable via Config.Region.
*/
package objectstore
