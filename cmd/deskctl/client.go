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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDesk/services/orchestrator/datatypes"
)

// baseURL resolves the orchestrator address from the flag, the
// environment, or the default, in that order.
func baseURL() string {
	if serverURL != "" {
		return strings.TrimRight(serverURL, "/")
	}
	if env := os.Getenv("DESK_SERVER_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return "http://localhost:12310"
}

// apiToken resolves the shared secret from the flag or the environment.
func apiToken() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("DESK_API_TOKEN")
}

// setAuth attaches the bearer token when one is configured.
func setAuth(req *http.Request) {
	if token := apiToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// postJSON sends a JSON body and returns the response. The caller closes
// the body.
func postJSON(path string, body interface{}) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequest("POST", baseURL()+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req)

	client := &http.Client{Timeout: 2 * time.Minute}
	return client.Do(req)
}

// getJSON issues a GET with the configured auth.
func getJSON(path string, timeout time.Duration) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL()+path, nil)
	if err != nil {
		return nil, err
	}
	setAuth(req)

	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

// decodeFinal reads a FinalResult from the response body.
func decodeFinal(resp *http.Response) (*datatypes.FinalResult, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var final datatypes.FinalResult
	if err := json.Unmarshal(data, &final); err != nil {
		return nil, fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, string(data))
	}
	return &final, nil
}

// printFinal prints a workflow outcome for the operator.
func printFinal(final *datatypes.FinalResult) {
	fmt.Printf("Ticket:  %s\n", final.TicketID)
	if final.SessionID != "" {
		fmt.Printf("Session: %s\n", final.SessionID)
	}
	fmt.Printf("Status:  %s\n", final.Status)
	fmt.Printf("Message: %s\n", final.Message)
}

func runSubmit(cmd *cobra.Command, args []string) {
	body := datatypes.SubmitRequestBody{
		Query:       strings.Join(args, " "),
		RequesterID: requesterID,
		Channel:     channel,
	}

	resp, err := postJSON("/v1/requests", body)
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		log.Fatalf("Request rejected (%d): %s", resp.StatusCode, string(data))
	}

	final, err := decodeFinal(resp)
	if err != nil {
		log.Fatalf("%v", err)
	}
	printFinal(final)
}

func runGetTicket(cmd *cobra.Command, args []string) {
	resp, err := getJSON("/v1/tickets/"+args[0], 30*time.Second)
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Ticket lookup failed (%d): %s", resp.StatusCode, string(data))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}

func runCallAccept(cmd *cobra.Command, args []string) {
	resp, err := postJSON("/v1/calls/"+args[0]+"/accepted", struct{}{})
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
		fmt.Printf("Call %s is active\n", args[0])
	case http.StatusConflict:
		log.Fatalf("Call %s already ended", args[0])
	default:
		log.Fatalf("Accept failed (%d): %s", resp.StatusCode, string(data))
	}
}

func runCallEnd(cmd *cobra.Command, args []string) {
	body := datatypes.CallEndedBody{}
	if transcriptPath != "" {
		entries, err := readTranscript(transcriptPath)
		if err != nil {
			log.Fatalf("Failed to read transcript: %v", err)
		}
		body.Transcript = entries
	}

	resp, err := postJSON("/v1/calls/"+args[0]+"/ended", body)
	if err != nil {
		log.Fatalf("Failed to reach orchestrator: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		log.Fatalf("Call end failed (%d): %s", resp.StatusCode, string(data))
	}

	final, err := decodeFinal(resp)
	if err != nil {
		log.Fatalf("%v", err)
	}
	printFinal(final)
}

func runHealth(cmd *cobra.Command, args []string) {
	resp, err := getJSON("/health", 10*time.Second)
	if err != nil {
		log.Fatalf("Orchestrator unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Orchestrator unhealthy (%d)", resp.StatusCode)
	}
	fmt.Println("Orchestrator is up")
}

// readTranscript loads a JSON transcript from a file, or stdin when the
// path is "-".
func readTranscript(path string) ([]datatypes.CallEndedEntry, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var entries []datatypes.CallEndedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("transcript must be a JSON array of {speaker, text} entries: %w", err)
	}
	return entries, nil
}
