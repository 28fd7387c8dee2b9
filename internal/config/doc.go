// Package config provides configuration parsing for tablestate hosts.
//
// The configuration is stored in tablestate.json. It declares the HTTP
// server, the local bucket backend and every table the host serves, with
// its columns, persistence targets and initial state.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "localhost",
//	    "port": 8080,
//	    "historyMode": "replace",
//	    "debounce": "300ms",
//	    "sessionTTL": "30m"
//	  },
//	  "local": {
//	    "backend": "file",
//	    "dir": "./state"
//	  },
//	  "tables": {
//	    "orders": {
//	      "persistence": {
//	        "urlNamespace": "orders",
//	        "pagination": {"allowedPageSizes": [10, 20, 50]}
//	      },
//	      "columns": [
//	        {"id": "status", "filter": {"variant": "select", "persistenceStorage": "url"}}
//	      ],
//	      "initialState": {"pagination": {"pageIndex": 0, "pageSize": 20}}
//	    }
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, err := cfg.Table("orders")
package config
