// Package importer turns existing broker configuration into a document.
//
// Two sources are supported: a hand-written mosquitto.conf, from which
// listeners and global settings are recovered, and a JSON backup produced
// by the export endpoint.
package importer
