// Package services is the registered-service directory: the relying parties
// this server issues tickets to and how each wants to be told about logout.
//
// A RegisteredService matches service identifiers with an anchored regular
// expression. Directories are consulted in evaluation order and the first
// match wins. Implementations:
//
//	MemoryDirectory   static list, used directly and by FileDirectory
//	FileDirectory     YAML file, hot reloaded with Watch
//	SQLDirectory      PostgreSQL table registered_services
//	CachingDirectory  expiring LRU in front of any Directory
//
// SQLDirectory evaluates patterns with the PostgreSQL regex operator, whose
// dialect differs slightly from Go's RE2; patterns should stay within the
// common subset.
package services
