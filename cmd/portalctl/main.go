// Command portalctl drives a portal session from the terminal: register,
// sign in, inspect and watch the session store, manage administrators and
// serve the guarded portal areas over HTTP.
package main

import (
	"os"

	"github.com/golang/glog"
	"github.com/hwlegacy/portalauth/cmd/portalctl/cmd"
)

func main() {
	err := cmd.Execute()
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
