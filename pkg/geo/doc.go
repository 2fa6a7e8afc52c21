// Package geo provides great-circle math for geofence checks.
//
// Distances use the Haversine formula on a spherical Earth with the
// IUGG mean radius. At attendance scale (tens of meters to a few
// kilometers) the spherical error stays well under GPS accuracy.
//
// All functions are pure and safe for concurrent use.
package geo
