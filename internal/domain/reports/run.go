package reports

// EngineOutput hasil dari satu proses engine yang keluar dengan status 0
type EngineOutput struct {
	Stdout     []byte
	ExitCode   int
	PID        int
	DurationMS int64
	// Truncated is set when the engine wrote more than the configured cap;
	// Stdout then holds only the first part and cannot be trusted.
	Truncated bool
}
