/*
Package analysis turns finished sessions into structurally complete analyses.

The Service posts a session to the remote analyzer through the resilient
client, unwraps the {success, data, metadata} envelope and hands the payload
to the Enricher, which back-fills every missing section with a value computed
from the prescription and the feedback. Heart-rate aggregates, when present,
are analyzed locally.

RemoteGenerator reuses the same client and envelope for plan generation.
*/
package analysis
