package config

type WorkerKeyStruct struct {
	PersistSessionCheckpointsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSessionCheckpointsQueue: "persist_session_checkpoints_queue",
}
