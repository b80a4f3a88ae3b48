// Package cli implements the testproxy command line.
//
//	testproxy serve [--config proxy.yaml] [--listen :5000] [--root ./recordings]
//	testproxy validate [--config proxy.yaml] [recording.json ...]
//	testproxy version [--json]
package cli
