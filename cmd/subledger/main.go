// Command subledger runs the subscription ledger: the HTTP API, the
// background jobs and the operator commands around them.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
