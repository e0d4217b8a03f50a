// Package staticmap fetches satellite tiles for a coordinate from a static
// map imagery service using fixed zoom, size, and map type.
package staticmap
