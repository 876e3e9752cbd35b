// Package workflows loads automation workflow templates and deploys them
// to workspace nodes, substituting stored credential ids and per-workspace
// variables for the placeholder tokens the templates carry.
package workflows
