// Package tickets holds SSO sessions and the relying-party services that were
// issued tickets under them, together with the registries that store them.
//
// A Session is a ticket-granting ticket (or proxy-granting ticket) with the
// set of SessionService records that participated in it. Each SessionService
// carries the logout state used to guarantee that a relying party receives at
// most one back-channel logout notification, even when two logout cascades
// for the same session run concurrently.
//
// Registries:
//
//	MemoryRegistry   single process, shares *Session pointers between callers
//	RedisRegistry    shared between instances, JSON documents plus an expiry index
//
// The Reaper finds expired sessions and hands them to a TerminateFunc,
// normally the single logout orchestrator.
package tickets
