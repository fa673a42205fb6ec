//go:build linux

package main

// Production platform registration.
import _ "github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform/linux"
