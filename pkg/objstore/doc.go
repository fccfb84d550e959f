/*
Package objstore abstracts object storage for media originals, derivatives,
and report exports.

Client is the contract; Local is the shipped implementation, storing objects
as files under one base directory and signing upload/download URLs with a
process-lifetime HMAC key. Keys are slash-separated and tenant-prefixed
({tenant_id}/media/...), so a tenant purge is a prefix walk. Swapping in S3
or GCS means implementing the five Client methods; nothing above this
package knows the difference.
*/
package objstore
