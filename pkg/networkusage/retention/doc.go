// Package retention deletes audit records older than a configured number
// of days, optionally archiving them to JSON first, on a cron schedule.
//
// # Usage
//
//	pruner := retention.NewPruner(repo, &retention.Config{
//	    RetentionDays: 30,
//	    PruneSchedule: "0 3 * * *",
//	}, clock.Real())
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
