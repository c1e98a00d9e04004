// Package trainlog defines the capability set a training driver uses to
// record its progress, the coordinator gate that decides which process may
// write, and a fan-out that drives several backends as one. Concrete backends
// live in the sinks subpackage.
package trainlog
