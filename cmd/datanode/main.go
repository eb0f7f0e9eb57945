// The datanode command runs one chunk storage server.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/datanode"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	listenAddr := flag.String("listen", fmt.Sprintf(":%d", common.DataNodePort), "listen address")
	dataDir := flag.String("data-dir", "data", "chunk storage directory")
	nsAddr := flag.String("namenode", fmt.Sprintf("localhost:%d", common.NameServicePort), "name service address")
	flag.Parse()

	node := datanode.New(*dataDir, namenode.NewClient(*nsAddr))
	if err := node.Start(*listenAddr); err != nil {
		logrus.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("shutting down")
	node.Close()
}
