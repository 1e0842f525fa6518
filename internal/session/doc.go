// Package session turns stopped scan runs into persisted scan sessions and
// provides the observable history built on top of a Store.
//
// An Aggregator finalizes each run at most once: repeated stop notifications
// for the same run return the session already built, and a run that found
// nothing produces no session. Only the most recent finished runs are
// remembered for this. Sessions copy device lists out of the capture so
// later registry changes never reach saved history.
//
// Catalog wraps a Store and keeps an in-memory copy of all sessions, newest
// first, which it refreshes after every write and pushes to subscribers.
// ApplyFilters is the pure filter used by the history views.
//
// # Usage Example
//
//	catalog := session.NewCatalog(st)
//	if err := catalog.Load(ctx); err != nil {
//	    return err
//	}
//	defer catalog.Close()
//
//	rec := session.NewRecorder(ctx, session.NewAggregator(catalog))
//	rec.Watch(engine, func(res session.Result) {
//	    if res.Err != nil {
//	        log.Printf("scan not saved: %v", res.Err)
//	    }
//	})
//
//	recent := catalog.Recent(10)
package session
