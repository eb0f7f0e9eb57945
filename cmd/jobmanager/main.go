// The jobmanager command runs the job manager service.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/mapred"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	listenAddr := flag.String("listen", fmt.Sprintf(":%d", common.JobManagerPort), "listen address")
	nsAddr := flag.String("namenode", fmt.Sprintf("localhost:%d", common.NameServicePort), "name service address")
	flag.Parse()

	jm := mapred.NewJobManager(namenode.NewClient(*nsAddr))
	if err := jm.Start(*listenAddr); err != nil {
		logrus.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("shutting down")
	jm.Close()
}
