// Package clientip extracts the client IP address of an HTTP request.
//
// Headers are checked in this order, the first valid address wins:
//  1. CF-Connecting-IP
//  2. DO-Connecting-IP
//  3. X-Forwarded-For (leftmost entry)
//  4. X-Real-IP
//  5. RemoteAddr
//
// Addresses are validated with net.ParseIP and normalized; 0.0.0.0 is
// rejected. When nothing valid is found the raw RemoteAddr is returned.
//
//	ip := clientip.GetIP(r)
package clientip
