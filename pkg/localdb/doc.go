/*
Package localdb operates on the local embedded snapshot database: an
integrity check, a consistent vacuum-copy to a sibling or temporary
path, best-effort row/table counts, and a content hash. It is the only
package that opens the snapshot file directly; the sync engine and
worker controller never touch database/sql themselves.

The snapshot is a modernc.org/sqlite database (pure Go, no cgo) with
three tracked tables: observations, session_summaries, user_prompts. A
missing table is not an error for Counts — it counts as zero, since an
older or freshly-created snapshot may not have all three yet.
*/
package localdb
