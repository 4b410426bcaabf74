package config

// MangleConfig configures the Mangle engine.
type MangleConfig struct {
	FactLimit    int    `yaml:"fact_limit"` // 0 = unlimited
	QueryTimeout string `yaml:"query_timeout"`
}
