// Package kv defines the key layout and value encoding shared by the
// key-value session stores (badgerstore, redisstore).
//
// Key layout (all keys are UTF-8, '/' separated):
//
//	sess/<tenant>/<employee>/<date>          -> AttendanceSession JSON
//	sidx/<tenant>/<employee>/<date>          -> empty (date index)
//	fix/<tenant>/<employee>                  -> LocationFix JSON
//	res/<tenant>/<employee>/<clientEventID>  -> ValidationResult JSON
//	key/<keyID>                              -> API key JSON (with hash)
//
// Dates sort lexically, so a prefix scan over sidx/ yields an employee's
// sessions in date order.
package kv
