/*
Package trigger signals pipeline engines on a schedule.

A Trigger holds schedule entries (one-time, repeating, or cron) and fires
Signal on the associated engine when an entry comes due. Each fire gets a
fresh run context by default and runs on its own goroutine.

	tr := trigger.New()

	tr.Every("heartbeat", engine, 30*time.Second)
	tr.Cron("nightly", "0 0 2 * * *", engine)

	tr.Start()
	defer func() { <-tr.Stop() }()

Cron expressions use a six-field format with a leading seconds field, plus
the usual descriptors such as "@hourly".
*/
package trigger
