// Command debtsync is the offline-capable debt ledger client.
package main

import "github.com/ledgerline/debtsync/internal/cli"

func main() {
	cli.Execute()
}
