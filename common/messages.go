package common

// Control-plane payloads, carried msgpack-encoded inside the framed
// envelope. One request/response pair per operation; notices that carry no
// result are acknowledged with Ack.

// Ack acknowledges a notice.
type Ack struct {
	Status Status `msgpack:"status"`
}

// WriteChunkRequest asks the name service where to place a new chunk.
type WriteChunkRequest struct {
	ReplicationFactor int `msgpack:"replication_factor"`
}

// WriteChunkResponse lists the chosen data node addresses, primary first.
type WriteChunkResponse struct {
	Status  Status   `msgpack:"status"`
	Servers []string `msgpack:"servers"`
}

// ReadFileRequest asks for one live replica address per chunk of a file.
type ReadFileRequest struct {
	FileName string `msgpack:"file_name"`
}

// ReadFileResponse carries one address per chunk index, in order.
type ReadFileResponse struct {
	Status  Status   `msgpack:"status"`
	Servers []string `msgpack:"servers"`
}

// DeleteFileRequest asks which data nodes hold chunks of a file.
type DeleteFileRequest struct {
	FileName string `msgpack:"file_name"`
}

// DeleteFileResponse lists the distinct live data nodes holding any chunk.
type DeleteFileResponse struct {
	Status  Status   `msgpack:"status"`
	Servers []string `msgpack:"servers"`
}

// ChunkWrittenNotice records that a server now holds a chunk.
type ChunkWrittenNotice struct {
	FileName          string `msgpack:"file_name"`
	FileSize          int    `msgpack:"file_size"`
	ChunkSize         int64  `msgpack:"chunk_size"`
	ReplicationFactor int    `msgpack:"replication_factor"`
	ChunkNumber       int    `msgpack:"chunk_number"`
	Server            string `msgpack:"server"`
}

// AllChunksWrittenNotice marks a file complete.
type AllChunksWrittenNotice struct {
	FileName string `msgpack:"file_name"`
}

// ChunkDeletedNotice records that a server no longer holds a chunk.
type ChunkDeletedNotice struct {
	FileName    string `msgpack:"file_name"`
	ChunkNumber int    `msgpack:"chunk_number"`
	Server      string `msgpack:"server"`
}

// NodeAvailableNotice registers a live data node or daemon.
type NodeAvailableNotice struct {
	Address string `msgpack:"address"`
}

// DaemonsRequest asks for the live daemon set.
type DaemonsRequest struct{}

// DaemonsResponse carries the live daemon addresses.
type DaemonsResponse struct {
	Status  Status   `msgpack:"status"`
	Daemons []string `msgpack:"daemons"`
}

// AddJobRequest registers a job with the job manager. InputFileName is empty
// for generator jobs.
type AddJobRequest struct {
	FunctionName  string `msgpack:"function_name"`
	InputFormat   string `msgpack:"input_format"`
	InputFileName string `msgpack:"input_file_name"`
}

// AddJobResponse returns the job id.
type AddJobResponse struct {
	Status Status `msgpack:"status"`
	JobID  int64  `msgpack:"job_id"`
}

// StartJobRequest marks a job started.
type StartJobRequest struct {
	JobID int64 `msgpack:"job_id"`
}

// SubmitMapRequest records that a map task has been dispatched.
type SubmitMapRequest struct {
	JobID    int64 `msgpack:"job_id"`
	MapIndex int   `msgpack:"map_index"`
}

// MapCompletedNotice reports a finished map task.
type MapCompletedNotice struct {
	JobID    int64 `msgpack:"job_id"`
	MapIndex int   `msgpack:"map_index"`
}

// CompletedMapsRequest asks how many maps of a job have completed.
type CompletedMapsRequest struct {
	JobID int64 `msgpack:"job_id"`
}

// CompletedMapsResponse carries the completion tally.
type CompletedMapsResponse struct {
	Status    Status `msgpack:"status"`
	Completed int    `msgpack:"completed"`
}

// RunMapRequest dispatches one map task to a daemon. InputName is the chunk
// file name inside the daemon's data directory, empty in generator mode.
type RunMapRequest struct {
	JobID          int64  `msgpack:"job_id"`
	MapIndex       int    `msgpack:"map_index"`
	FunctionName   string `msgpack:"function_name"`
	InputFormat    string `msgpack:"input_format"`
	InputName      string `msgpack:"input_name"`
	OutputFileName string `msgpack:"output_file_name"`
}

// RunMapResponse acknowledges that the daemon accepted the task.
type RunMapResponse struct {
	Status Status `msgpack:"status"`
}
