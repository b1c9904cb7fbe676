// Package dispatch groups the event-dispatch components: the staged pipeline
// engine, the named pipeline registry, and the schedule-driven trigger.
package dispatch
