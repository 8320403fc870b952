// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command deskctl is the operator CLI for the AleutianDesk orchestrator.
//
// It talks to a running orchestrator over HTTP: submitting support
// requests, reporting call lifecycle events on behalf of the voice stack,
// and inspecting tickets.
//
// # Usage
//
//	# Submit a request and print the outcome
//	deskctl submit "my vpn connection keeps dropping"
//
//	# Report that the assigned expert picked up the call
//	deskctl call accept <session-id>
//
//	# Report that a call ended, with a transcript file
//	deskctl call end <session-id> --transcript transcript.json
//
//	# Inspect a ticket
//	deskctl ticket <ticket-id>
//
// The server address comes from --server or the DESK_SERVER_URL
// environment variable (default: http://localhost:12310).
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
