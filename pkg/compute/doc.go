// Package compute provisions dedicated workspace droplets on DigitalOcean
// and terminates them during compensation.
package compute
