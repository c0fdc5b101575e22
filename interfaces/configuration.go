package interfaces

// ConfigurationSystem persists user preferences between runs.
type ConfigurationSystem interface {
	LoadConfiguration() bool
	SaveConfiguration() bool
}
