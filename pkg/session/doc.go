/*
Package session keeps the live pipelines of a process.

The Manager maps each user to one pipeline.Machine and serializes the
operations issued on it, locally with reference-counted mutexes and, when a
ports.DistributedLocker is configured, across replicas as well.
*/
package session
