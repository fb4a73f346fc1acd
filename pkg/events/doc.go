/*
Package events is an in-memory, non-blocking pub/sub broker for job and task
lifecycle events (job registered/updated/removed, task scheduled/started/
finished/failed/retries-exhausted/skipped).

Publish never blocks on a subscriber: each subscriber has its own buffered
channel, and a full buffer just drops the event rather than stalling the
broadcast loop. Observers that need every event (e.g. jobstats) should drain
their channel promptly; this broker makes no delivery guarantee.
*/
package events
