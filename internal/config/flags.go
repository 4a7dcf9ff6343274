package config

import "github.com/spf13/pflag"

// RegisterFlags adds nfsd's CLI flags to fs, bound by Load via
// viper.BindPFlags so an explicitly-set flag outranks the environment,
// the config file, and the defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("logging.level", "INFO", "minimum log level (DEBUG, INFO, WARN, ERROR)")
	fs.String("logging.format", "text", "log output format (text, json)")
	fs.String("logging.output", "stdout", "log output destination (stdout, stderr, or a file path)")

	fs.Int("listen.portmap", 111, "PORTMAP v2 listen port")
	fs.Int("listen.mount", 20048, "MOUNT v3 listen port")
	fs.Int("listen.nfs", 2049, "NFSv3 listen port")

	fs.Uint32("identity.default_uid", 65534, "uid reported as the owner of every file")
	fs.Uint32("identity.default_gid", 65534, "gid reported as the owner of every file")

	fs.String("alias_file", "./aliases.conf", "path-list file mapping alias paths to host paths")
	fs.String("cache_file", "./mount_cache", "mount cache persistence file")

	fs.Bool("metrics.enabled", false, "serve Prometheus metrics and /healthz")
	fs.Int("metrics.port", 9090, "metrics HTTP server port")
}
