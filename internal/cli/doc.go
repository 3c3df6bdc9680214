// Package cli implements spotctl, an operator tool for inspecting and
// clearing entries in a spot store.
package cli
