// Package zonefile serves tenant policies and geofence zones from a YAML
// file maintained by external admin tooling.
//
// The file lists tenants, each with an optional policy and its zones:
//
//	tenants:
//	  - tenant_id: acme
//	    policy:
//	      enforcement_mode: Strict
//	      timezone: Europe/Berlin
//	      override_secret: change-me
//	    zones:
//	      - zone_id: hq
//	        label: Head office
//	        center_lat: 52.5200
//	        center_lng: 13.4050
//	        radius_meters: 120
//	        active_from: 2024-01-01T00:00:00Z
//
// Reload replaces the whole snapshot atomically. A file that fails to
// parse or validate is rejected and the previous snapshot stays in use.
package zonefile
