package common

// Message types for the control protocol
const (
	// Name service messages
	MsgTypeWriteChunkRequest  byte = 1
	MsgTypeWriteChunkResponse byte = 2
	MsgTypeReadFileRequest    byte = 3
	MsgTypeReadFileResponse   byte = 4
	MsgTypeDeleteFileRequest  byte = 5
	MsgTypeDeleteFileResponse byte = 6
	MsgTypeChunkWritten       byte = 7
	MsgTypeAllChunksWritten   byte = 8
	MsgTypeChunkDeleted       byte = 9
	MsgTypeDataNodeAvailable  byte = 10
	MsgTypeDaemonAvailable    byte = 11
	MsgTypeDaemonsRequest     byte = 12
	MsgTypeDaemonsResponse    byte = 13
	MsgTypeAck                byte = 14

	// Job manager messages
	MsgTypeAddJob                byte = 20
	MsgTypeAddJobResponse        byte = 21
	MsgTypeStartJob              byte = 22
	MsgTypeSubmitMap             byte = 23
	MsgTypeMapCompleted          byte = 24
	MsgTypeCompletedMapsRequest  byte = 25
	MsgTypeCompletedMapsResponse byte = 26

	// Daemon messages
	MsgTypeRunMap         byte = 30
	MsgTypeRunMapResponse byte = 31
)

// Well-known service ports. The name service and job manager bind on the
// control ports; each data node and daemon binds under its own host.
const (
	NameServicePort = 8000
	AdminPort       = 8001
	JobManagerPort  = 8010
	DataNodePort    = 8020
	DaemonPort      = 8030
)

// Registry names the control services advertise under.
const (
	NameServiceName = "NameService"
	JobManagerName  = "JobManager"
)

// Default values
const (
	DefaultChunkSize   = 4 * 1024 * 1024 // bytes, nominal ceiling per chunk
	DefaultReplication = 1
	HeartbeatInterval  = 5 // seconds

	// Job client barrier polling cadence, milliseconds
	BarrierPollInterval = 200

	SnapshotFileName = "nameservice-data"
)

// DeleteAllChunks is the chunk number sent in a DELETE header to ask a data
// node to remove every chunk of the file it holds.
const DeleteAllChunks = -1
