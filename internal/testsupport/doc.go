// Package testsupport provides config builders, file helpers, and fakes for
// package tests.
package testsupport
