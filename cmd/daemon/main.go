// The daemon command runs one map executor, co-located with a data node.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/examples/wordcount"
	"github.com/vaflag/hidoop/mapred"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	listenAddr := flag.String("listen", fmt.Sprintf(":%d", common.DaemonPort), "listen address")
	dataDir := flag.String("data-dir", "data", "shared chunk directory of the co-located data node")
	dataNodeAddr := flag.String("datanode", fmt.Sprintf("localhost:%d", common.DataNodePort), "co-located data node address")
	nsAddr := flag.String("namenode", fmt.Sprintf("localhost:%d", common.NameServicePort), "name service address")
	jmAddr := flag.String("jobmanager", fmt.Sprintf("localhost:%d", common.JobManagerPort), "job manager address")
	flag.Parse()

	mapred.Register(wordcount.Name, wordcount.New())

	daemon := mapred.NewDaemon(*dataDir, *dataNodeAddr,
		namenode.NewClient(*nsAddr), mapred.NewJobManagerClient(*jmAddr))
	if err := daemon.Start(*listenAddr); err != nil {
		logrus.Fatal(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logrus.Info("shutting down")
	daemon.Close()
}
