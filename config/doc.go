// Package config loads a runtime and client description from YAML, applies
// WRAP_* environment overrides and builds the described runtime and client.
//
// A minimal file:
//
//	pool:
//	  max: 4
//	  max_wait: 5s
//	resolution:
//	  max_depth: 16
//	redirects:
//	  wrap://ens/adder.eth: wrap://fs/adder
//	packages:
//	  - uri: wrap://fs/adder
//	    path: /srv/wraps/adder
//	log:
//	  level: debug
package config
