package mapred

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/namenode"
)

// job is the per-job state held by the manager.
type job struct {
	mu            sync.Mutex
	functionName  string
	inputFormat   string
	inputFileName string
	started       bool
	expectedMaps  int
	completedMaps int
	taskIDs       map[int]string
}

// JobManager tracks jobs and their map completion tallies. It does not drive
// maps itself; dispatch is the job client's role.
type JobManager struct {
	mu     sync.Mutex
	jobs   map[int64]*job
	nextID int64

	ns       *namenode.Client
	listener net.Listener
	log      *logrus.Entry
}

// NewJobManager creates a job manager proxying daemon discovery to ns.
func NewJobManager(ns *namenode.Client) *JobManager {
	return &JobManager{
		jobs: make(map[int64]*job),
		ns:   ns,
		log:  logrus.WithField("component", "jobmanager"),
	}
}

// AddJob registers a job and returns its id. inputFileName is empty for
// generator jobs.
func (jm *JobManager) AddJob(functionName, inputFormat, inputFileName string) int64 {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.nextID++
	id := jm.nextID
	jm.jobs[id] = &job{
		functionName:  functionName,
		inputFormat:   inputFormat,
		inputFileName: inputFileName,
		taskIDs:       make(map[int]string),
	}
	jm.log.WithFields(logrus.Fields{
		"job":      id,
		"function": functionName,
		"input":    inputFileName,
	}).Info("job added")
	return id
}

func (jm *JobManager) getJob(id int64) (*job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	j, ok := jm.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %d: %w", id, common.ErrUnknownJob)
	}
	return j, nil
}

// StartJob marks a job started.
func (jm *JobManager) StartJob(id int64) error {
	j, err := jm.getJob(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.started = true
	j.mu.Unlock()
	jm.log.WithField("job", id).Info("job started")
	return nil
}

// SubmitMap records that one map task has been dispatched.
func (jm *JobManager) SubmitMap(id int64, mapIndex int) error {
	j, err := jm.getJob(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.expectedMaps++
	j.taskIDs[mapIndex] = uuid.NewString()
	taskID := j.taskIDs[mapIndex]
	j.mu.Unlock()
	jm.log.WithFields(logrus.Fields{
		"job":  id,
		"map":  mapIndex,
		"task": taskID,
	}).Info("map submitted")
	return nil
}

// MapCompleted records one finished map task. The tally only ever grows.
func (jm *JobManager) MapCompleted(id int64, mapIndex int) error {
	j, err := jm.getJob(id)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.completedMaps++
	completed, expected := j.completedMaps, j.expectedMaps
	j.mu.Unlock()
	jm.log.WithFields(logrus.Fields{
		"job": id,
		"map": mapIndex,
	}).Infof("map completed (%d/%d)", completed, expected)
	return nil
}

// CompletedMaps reports the completion tally, the observation behind the job
// client's barrier.
func (jm *JobManager) CompletedMaps(id int64) (int, error) {
	j, err := jm.getJob(id)
	if err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completedMaps, nil
}

// AvailableDaemons proxies daemon discovery to the name service.
func (jm *JobManager) AvailableDaemons() ([]string, error) {
	return jm.ns.AvailableDaemons()
}

// Start begins serving the control protocol on addr.
func (jm *JobManager) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	jm.listener = listener
	jm.log.Infof("%s listening on %s", common.JobManagerName, listener.Addr())
	go jm.acceptLoop()
	return nil
}

// Addr returns the bound address.
func (jm *JobManager) Addr() string {
	if jm.listener == nil {
		return ""
	}
	return jm.listener.Addr().String()
}

// Close stops the listener.
func (jm *JobManager) Close() error {
	if jm.listener != nil {
		return jm.listener.Close()
	}
	return nil
}

func (jm *JobManager) acceptLoop() {
	for {
		conn, err := jm.listener.Accept()
		if err != nil {
			return
		}
		go jm.handleConn(conn)
	}
}

func (jm *JobManager) handleConn(conn net.Conn) {
	defer conn.Close()

	msgType, data, err := common.ReadMessage(conn)
	if err != nil {
		jm.log.WithError(err).Error("error reading control message")
		return
	}
	respType, resp, err := jm.dispatch(msgType, data)
	if err != nil {
		jm.log.WithError(err).Error("error handling control message")
		return
	}
	payload, err := msgpack.Marshal(resp)
	if err != nil {
		jm.log.WithError(err).Error("error marshalling response")
		return
	}
	if err := common.WriteMessage(conn, respType, payload); err != nil {
		jm.log.WithError(err).Error("error sending response")
	}
}

func (jm *JobManager) dispatch(msgType byte, data []byte) (byte, interface{}, error) {
	switch msgType {
	case common.MsgTypeAddJob:
		var req common.AddJobRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal add job request: %w", err)
		}
		id := jm.AddJob(req.FunctionName, req.InputFormat, req.InputFileName)
		return common.MsgTypeAddJobResponse, &common.AddJobResponse{
			Status: common.StatusOK(),
			JobID:  id,
		}, nil

	case common.MsgTypeStartJob:
		var req common.StartJobRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal start job request: %w", err)
		}
		err := jm.StartJob(req.JobID)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOf(err)}, nil

	case common.MsgTypeSubmitMap:
		var req common.SubmitMapRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal submit map request: %w", err)
		}
		err := jm.SubmitMap(req.JobID, req.MapIndex)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOf(err)}, nil

	case common.MsgTypeMapCompleted:
		var req common.MapCompletedNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal map completed notice: %w", err)
		}
		err := jm.MapCompleted(req.JobID, req.MapIndex)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOf(err)}, nil

	case common.MsgTypeCompletedMapsRequest:
		var req common.CompletedMapsRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal completed maps request: %w", err)
		}
		completed, err := jm.CompletedMaps(req.JobID)
		return common.MsgTypeCompletedMapsResponse, &common.CompletedMapsResponse{
			Status:    common.StatusOf(err),
			Completed: completed,
		}, nil

	case common.MsgTypeDaemonsRequest:
		daemons, err := jm.AvailableDaemons()
		return common.MsgTypeDaemonsResponse, &common.DaemonsResponse{
			Status:  common.StatusOf(err),
			Daemons: daemons,
		}, nil
	}
	return 0, nil, fmt.Errorf("unknown message type: %d", msgType)
}
