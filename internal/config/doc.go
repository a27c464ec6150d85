// Package config provides loading and environment overlay for linelog
// configuration. It exposes a Default() baseline, JSON/YAML file loading and
// a LINELOG_* environment overlay.
//
// Example:
//
//	cfg, err := config.Load("/etc/linelog.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
//	rt, _ := runtime.Open(runtime.Options{DataDir: config.DefaultDataDir(), Config: cfg})
//	defer rt.Close(context.Background())
package config
