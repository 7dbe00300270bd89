// Package api defines the wire types of the trygate HTTP surface: the
// error envelope shared by every endpoint, the template and resource
// payloads, and resource identifier generation.
package api
