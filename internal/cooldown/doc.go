// Package cooldown suppresses repeat fires of a rule for the same recipient.
//
// The only operation is TryAcquire, an atomic check-and-set: it succeeds and
// stamps lastFiredAt=now when no record exists or the window has elapsed,
// and fails without writing otherwise. Each backend implements it as one
// conditional write (a Lua script on Redis, a guarded upsert on Postgres, a
// conditional PutItem on DynamoDB), never as a read followed by a write.
//
// Rules without a cooldown still record the fire for audit and always
// acquire.
package cooldown
