package common

// VERSION is the build version, workers advertise it to the broker unless gwrelay.worker_version is set.
// Set at build time with -ldflags "-X github.com/botlabs-gg/gwrelay/common.VERSION=x.y.z"
var VERSION = "1.0.0"
