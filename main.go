// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("go-overtask - Offline-First Task Synchronization")
	fmt.Println("================================================")
	fmt.Println()
	fmt.Println("go-overtask keeps construction tasks in a local SQLite store, publishes")
	fmt.Println("locally created records to a REST backend and reconciles both sides in")
	fmt.Println("gated background cycles.")
	fmt.Println()

	fmt.Println("Available Examples:")
	fmt.Println()
	fmt.Println("1. Task Server (examples/taskserver/)")
	fmt.Println("   REST backend over PostgreSQL (pgx) or memory, with JWT auth and /metrics")
	fmt.Println("   Run: go run ./examples/taskserver -addr :3001")
	fmt.Println()

	fmt.Println("2. Device CLI (examples/device/)")
	fmt.Println("   Offline-first client: local store, sync engine, health probe")
	fmt.Println("   Run: go run ./examples/device --user alice add \"Pour foundation\"")
	fmt.Println("        go run ./examples/device --user alice run")
	fmt.Println()
}
