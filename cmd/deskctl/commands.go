// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL      string
	authToken      string
	requesterID    string
	channel        string
	transcriptPath string

	rootCmd = &cobra.Command{
		Use:   "deskctl",
		Short: "A cli to operate the AleutianDesk support orchestrator",
		Long: `deskctl talks to a running orchestrator over HTTP: submitting
support requests, reporting call lifecycle events, and inspecting tickets.`,
	}

	// --- Requests ---
	submitCmd = &cobra.Command{
		Use:   "submit [query]",
		Short: "Submit a support request and print the outcome",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSubmit, // Defined in client.go
	}

	// --- Tickets ---
	ticketCmd = &cobra.Command{
		Use:   "ticket [ticket-id]",
		Short: "Print a ticket's current state",
		Args:  cobra.ExactArgs(1),
		Run:   runGetTicket, // Defined in client.go
	}

	// --- Call Lifecycle ---
	callCmd = &cobra.Command{
		Use:   "call",
		Short: "Report call lifecycle events on behalf of the voice stack",
	}
	callAcceptCmd = &cobra.Command{
		Use:   "accept [session-id]",
		Short: "Report that the assigned expert picked up the call",
		Args:  cobra.ExactArgs(1),
		Run:   runCallAccept, // Defined in client.go
	}
	callEndCmd = &cobra.Command{
		Use:   "end [session-id]",
		Short: "Report that a call ended and print the resulting outcome",
		Args:  cobra.ExactArgs(1),
		Run:   runCallEnd, // Defined in client.go
	}

	// --- Utilities ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check that the orchestrator is up",
		Args:  cobra.NoArgs,
		Run:   runHealth, // Defined in client.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Orchestrator base URL (default: $DESK_SERVER_URL or http://localhost:12310)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "",
		"API bearer token (default: $DESK_API_TOKEN)")

	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&requesterID, "requester", "", "Identifier of the person submitting the request")
	submitCmd.Flags().StringVar(&channel, "channel", "web", "Intake channel (web, chat, voice, email)")

	rootCmd.AddCommand(ticketCmd)

	rootCmd.AddCommand(callCmd)
	callCmd.AddCommand(callAcceptCmd)
	callCmd.AddCommand(callEndCmd)
	callEndCmd.Flags().StringVar(&transcriptPath, "transcript", "",
		"JSON transcript file ([{\"speaker\":...,\"text\":...}]); '-' reads stdin, empty sends no transcript")

	rootCmd.AddCommand(healthCmd)
}
