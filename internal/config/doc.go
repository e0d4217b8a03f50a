// Package config loads, normalizes, and validates solarverify configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GOOGLE_MAPS_API_KEY. The Config type is the single object handed to the
// pipeline runner: paths, the imagery credential, the oracle endpoint, and
// metric thresholds all travel through it instead of package globals.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
