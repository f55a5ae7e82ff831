// Package cliout renders cmd/evolve-plugin's command results as a
// single JSON document on stdout, a consistent success/error envelope
// so operator scripts can pipe any subcommand's output through one
// decoder.
package cliout

import (
	"encoding/json"
	"os"
)

// Response is the envelope every subcommand prints exactly one of.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success wraps data in a successful Response.
func Success(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Error wraps err in a failed Response.
func Error(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// Print encodes v as compact JSON to stdout, or as indented JSON when
// OPENCODE_EVOLVE_PRETTY_JSON is set.
func Print(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	if os.Getenv("OPENCODE_EVOLVE_PRETTY_JSON") != "" {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// PrintSuccess prints a successful Response wrapping data.
func PrintSuccess(data interface{}) error {
	return Print(Success(data))
}

// PrintError prints a failed Response wrapping err.
func PrintError(err error) error {
	return Print(Error(err))
}
