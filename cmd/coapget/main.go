// coapget is a minimal demo client: one GET, printed to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lobaro/coap-engine/coap"
	"github.com/lobaro/coap-engine/udpv6"
)

func main() {
	addr := flag.String("addr", "[::1]:5683", "peer address, host:port")
	path := flag.String("path", "/", "URI path to GET")
	timeout := flag.Duration("timeout", 35*time.Second, "overall exchange deadline")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ep, err := udpv6.Dial(*addr, 0)
	if err != nil {
		log.WithError(err).Fatal("dial failed")
	}

	client := coap.NewClient(ep, *addr).WithLogger(log)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := client.Get(ctx, *path)
	if err != nil {
		log.WithError(err).Fatal("exchange failed")
	}

	fmt.Printf("%s %s\n%s\n", resp.Type, resp.Code, resp.Payload)
	os.Exit(0)
}
