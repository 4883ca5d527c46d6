package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/voxlane/janusctl/internal/mockgateway"
	"github.com/voxlane/janusctl/internal/observability"
)

func main() {
	addr := flag.String("addr", ":8088", "listen address")
	pollWait := flag.Duration("pollwait", 25*time.Second, "max time an empty poll blocks")
	flag.Parse()

	observability.InitLogger("mockgateway")

	gw := mockgateway.New()
	gw.SetPollWait(*pollWait)
	if err := gw.Engine().Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "mockgateway: %v\n", err)
		os.Exit(1)
	}
}
