package mapred

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/namenode"
)

// Daemon is the per-host map executor, co-located with a data node and
// sharing its data directory so input chunks are local files.
type Daemon struct {
	addr         string // advertised host:port
	dataDir      string
	dataNodeAddr string // co-located data node, reported as the output chunk holder

	ns *namenode.Client
	jm *JobManagerClient

	listener net.Listener
	stopCh   chan struct{}
	log      *logrus.Entry
}

// NewDaemon creates a daemon reading and writing chunks under dataDir. The
// co-located data node's address is what the name service records as the
// holder of map output chunks.
func NewDaemon(dataDir, dataNodeAddr string, ns *namenode.Client, jm *JobManagerClient) *Daemon {
	return &Daemon{
		dataDir:      dataDir,
		dataNodeAddr: dataNodeAddr,
		ns:           ns,
		jm:           jm,
		stopCh:       make(chan struct{}),
		log:          logrus.WithField("component", "daemon"),
	}
}

// Start listens on addr, registers with the name service and begins serving
// map tasks.
func (d *Daemon) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	d.listener = listener
	d.addr = listener.Addr().String()
	d.log = d.log.WithField("addr", d.addr)
	d.log.Info("daemon started")

	go d.acceptLoop()
	go d.heartbeatLoop()
	return nil
}

// Addr returns the advertised address.
func (d *Daemon) Addr() string { return d.addr }

// Close stops the listener and the heartbeat.
func (d *Daemon) Close() error {
	close(d.stopCh)
	if d.listener != nil {
		return d.listener.Close()
	}
	return nil
}

func (d *Daemon) heartbeatLoop() {
	if err := d.ns.NotifyDaemonAvailability(d.addr); err != nil {
		d.log.WithError(err).Warn("failed to register with name service")
	}
	ticker := time.NewTicker(common.HeartbeatInterval * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if err := d.ns.NotifyDaemonAvailability(d.addr); err != nil {
				d.log.WithError(err).Warn("failed to send heartbeat to name service")
			}
		}
	}
}

func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.handleConn(conn)
	}
}

// handleConn accepts one run-map request. The task is acknowledged
// immediately and executed on its own goroutine; completion travels through
// the job manager callback, not this connection.
func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	msgType, data, err := common.ReadMessage(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading control message")
		return
	}
	if msgType != common.MsgTypeRunMap {
		d.log.Errorf("unknown message type: %d", msgType)
		return
	}
	var req common.RunMapRequest
	if err := msgpack.Unmarshal(data, &req); err != nil {
		d.log.WithError(err).Error("failed to unmarshal run map request")
		return
	}

	var status common.Status
	if _, ok := Lookup(req.FunctionName); !ok {
		status = common.StatusOf(fmt.Errorf("function %s: %w", req.FunctionName, common.ErrUnknownFunction))
	} else {
		go d.runMap(req)
	}

	payload, err := msgpack.Marshal(&common.RunMapResponse{Status: status})
	if err != nil {
		d.log.WithError(err).Error("error marshalling response")
		return
	}
	if err := common.WriteMessage(conn, common.MsgTypeRunMapResponse, payload); err != nil {
		d.log.WithError(err).Error("error sending response")
	}
}

// runMap executes one map task: open the local input chunk (none in
// generator mode), run the user map into the output chunk, report the chunk
// to the name service and the completion to the job manager.
func (d *Daemon) runMap(req common.RunMapRequest) {
	taskLog := d.log.WithFields(logrus.Fields{
		"job": req.JobID,
		"map": req.MapIndex,
	})
	taskLog.Infof("running map %s on input %q", req.FunctionName, req.InputName)

	fn, ok := Lookup(req.FunctionName)
	if !ok {
		taskLog.Errorf("function %s not registered", req.FunctionName)
		return
	}

	var reader format.Reader
	if req.InputName != "" {
		inputFormat, err := format.ParseType(req.InputFormat)
		if err != nil {
			taskLog.WithError(err).Error("bad input format")
			return
		}
		reader, err = format.OpenReader(inputFormat, filepath.Join(d.dataDir, req.InputName))
		if err != nil {
			taskLog.WithError(err).Error("failed to open input chunk")
			return
		}
		defer reader.Close()
	}

	outBase, outExt := common.SplitFileName(req.OutputFileName)
	outPath := filepath.Join(d.dataDir, common.ChunkFileName(outBase, req.MapIndex, outExt))
	writer, err := format.CreateKVWriter(outPath)
	if err != nil {
		taskLog.WithError(err).Error("failed to create output chunk")
		return
	}

	if err := fn.Map(reader, writer); err != nil {
		writer.Close()
		os.Remove(outPath)
		taskLog.WithError(err).Error("map function failed")
		return
	}
	if err := writer.Close(); err != nil {
		taskLog.WithError(err).Error("failed to close output chunk")
		return
	}

	info, err := os.Stat(outPath)
	if err != nil {
		taskLog.WithError(err).Error("failed to stat output chunk")
		return
	}

	// The output chunk's actual size plays the chunk-size role in the name
	// service callback; the intentional mismatch is what marks the file as a
	// map output there.
	if err := d.ns.ChunkWritten(req.OutputFileName, 0, info.Size(), 1, req.MapIndex, d.dataNodeAddr); err != nil {
		taskLog.WithError(err).Error("failed to report output chunk to name service")
		return
	}
	if err := d.jm.MapCompleted(req.JobID, req.MapIndex); err != nil {
		taskLog.WithError(err).Error("failed to report completion to job manager")
		return
	}
	taskLog.Infof("map completed, output chunk %s (%d bytes)", filepath.Base(outPath), info.Size())
}
