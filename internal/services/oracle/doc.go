// Package oracle implements the detection oracle as an HTTP client for a
// remote inference service. Images are uploaded as multipart form data and
// detections come back as JSON, optionally with a base64 annotated image.
package oracle
