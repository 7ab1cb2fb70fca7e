// Command health probes a running historydb ops listener. Exits 0 when the
// daemon reports healthy, 1 otherwise. Suitable as a container healthcheck.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:9090", "ops listener base URL")
	timeout := flag.Duration("timeout", 2*time.Second, "probe timeout")
	flag.Parse()

	status, body, err := fasthttp.GetTimeout(nil, *addr+"/healthz", *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d: %s\n", status, body)
		os.Exit(1)
	}
	fmt.Println("ok")
}
