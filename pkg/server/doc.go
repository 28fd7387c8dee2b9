// Package server hosts persisted table state over HTTP.
//
// Each client, identified by the tablestate_client cookie (or the
// X-Tablestate-Client header), gets one session per declared table. The
// session hydrates its URL bucket from the query string of the first
// request, loads its local blob from the configured backend and keeps the
// resolved table state in memory until it expires.
//
// Routes:
//
//	GET    /tables/                          declared table names
//	GET    /tables/{table}/state?<query>     snapshot; a query on an open session re-hydrates the URL bucket
//	POST   /tables/{table}/state/{slice}     {"value": ...} for pagination, sorting, columnFilters,
//	                                         columnVisibility, globalFilter or rowSelection
//	POST   /tables/{table}/reset-pagination
//	POST   /tables/{table}/sync              reload the local blob and re-resolve
//	POST   /tables/{table}/columns/{column}  {"options": [...], "isLoading": false}
//	DELETE /tables/{table}/persisted/{url|local}
//	DELETE /tables/{table}/session
//	GET    /tables/{table}/watch             websocket stream of state and navigate events
//	GET    /metrics                          when server.metrics is enabled
//
// Example:
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    return err
//	}
//	srv := server.New(cfg, server.WithLogger(logger))
//	return srv.ListenAndServe(ctx)
package server
