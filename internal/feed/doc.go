// Package feed serves live scan activity and session history over HTTP.
//
// A Server exposes:
//
//	GET    /ws                  WebSocket stream of engine and catalog events
//	GET    /api/health          liveness probe
//	GET    /api/status          run snapshots and current devices per channel
//	GET    /api/sessions        session history (?type=radio|network&date=YYYY-MM-DD&search=TEXT&limit=N)
//	GET    /api/sessions/{id}   one session
//	DELETE /api/sessions/{id}   delete a session
//
// Every WebSocket message is a JSON encoded Message. Clients receive a status
// message and the current session list when they connect, then every engine
// event and every catalog refresh as it happens. Clients that fall behind are
// disconnected rather than allowed to stall the engines.
package feed
