package model

// Environment is the read-only identification record supplied to every probe
// executor once per run. Executors must not mutate it.
type Environment struct {
	Hostname  string `json:"hostname"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
}
