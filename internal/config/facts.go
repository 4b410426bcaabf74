package config

// FactsConfig locates the points-to fact database. The three values are
// handed to the fact source unchanged.
type FactsConfig struct {
	DBPath    string `yaml:"db_path"`    // directory of .facts files, or a SQLite file
	CachePath string `yaml:"cache_path"` // query cache directory, empty disables caching
	App       string `yaml:"app"`        // application identifier
}
