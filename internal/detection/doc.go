// Package detection holds the bounding box and detection result model, the
// adapter that calls the detection oracle at a fixed low confidence floor, and
// the image decoding and overlay rendering that surround it.
package detection
