package config

import "github.com/spf13/viper"

// Defaults mirror the original deployment profile of the mover: a 4096-entry
// ring with CLAMP, 256 page-sized registered buffers, a 10 ms batch window,
// and zero-copy send enabled.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("socket.path", "/tmp/mover.sock")

	v.SetDefault("backend.type", "memory")
	v.SetDefault("backend.url", "")

	v.SetDefault("ring.entries", 4096)
	v.SetDefault("ring.flags", "clamp")

	v.SetDefault("buffers.count", 256)
	v.SetDefault("buffers.size", 4096)

	v.SetDefault("batch.timeout_ms", 10)

	v.SetDefault("server.max_connections", 32)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 0)

	v.SetDefault("features.huge_pages", false)
	v.SetDefault("features.zero_copy_send", true)
}
