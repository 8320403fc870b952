// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicket_Defaults(t *testing.T) {
	ticket := NewTicket("VPN access", "cannot reach the VPN", "u-100", "web")

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, DefaultMaxRedirects, ticket.MaxRedirects)
	assert.Equal(t, 0, ticket.RedirectCount)
	assert.Empty(t, ticket.RedirectHistory)
	assert.Empty(t, ticket.AssignedExpertID)
	assert.Greater(t, ticket.CreatedAt, int64(0))
}

func TestTicketContext_RecordRedirect_KeepsCountAndHistoryInSync(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))

	require.NoError(t, ticket.RecordRedirect("expert-b", false))
	assert.Equal(t, 1, ticket.RedirectCount)
	assert.Equal(t, []string{"expert-a"}, ticket.RedirectHistory)
	assert.Equal(t, "expert-b", ticket.AssignedExpertID)

	require.NoError(t, ticket.RecordRedirect("expert-c", false))
	assert.Equal(t, 2, ticket.RedirectCount)
	assert.Equal(t, []string{"expert-a", "expert-b"}, ticket.RedirectHistory)
	assert.Len(t, ticket.RedirectHistory, ticket.RedirectCount)
}

func TestTicketContext_RecordRedirect_RejectsRepeatTarget(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))
	require.NoError(t, ticket.RecordRedirect("expert-b", false))

	// expert-a already held the ticket; going back is a loop.
	err := ticket.RecordRedirect("expert-a", false)
	require.Error(t, err)
	assert.Equal(t, 1, ticket.RedirectCount)
	assert.Equal(t, "expert-b", ticket.AssignedExpertID)
}

func TestTicketContext_RecordRedirect_AllowReassignOverride(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))
	require.NoError(t, ticket.RecordRedirect("expert-b", false))

	require.NoError(t, ticket.RecordRedirect("expert-a", true))
	assert.Equal(t, "expert-a", ticket.AssignedExpertID)
	assert.Equal(t, 2, ticket.RedirectCount)
}

func TestTicketContext_RecordRedirect_BudgetExhausted(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	ticket.MaxRedirects = 2
	require.NoError(t, ticket.Assign("expert-a"))
	require.NoError(t, ticket.RecordRedirect("expert-b", false))
	require.NoError(t, ticket.RecordRedirect("expert-c", false))

	assert.False(t, ticket.CanRedirect())
	err := ticket.RecordRedirect("expert-d", false)
	require.Error(t, err)

	// Budget is never bypassed, even with the reassign override.
	err = ticket.RecordRedirect("expert-d", true)
	require.Error(t, err)
	assert.Equal(t, 2, ticket.RedirectCount)
}

func TestTicketContext_ExcludedExperts(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))
	require.NoError(t, ticket.RecordRedirect("expert-b", false))

	excluded := ticket.ExcludedExperts()
	assert.Contains(t, excluded, "expert-a")
	assert.Contains(t, excluded, "expert-b")
	assert.Len(t, excluded, 2)
}

func TestTicketContext_Assign_RejectsDoubleAssign(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))
	assert.Error(t, ticket.Assign("expert-b"))
}

func TestTicketContext_Assign_RejectsRequester(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")

	err := ticket.Assign("u-100")
	require.Error(t, err)
	assert.Empty(t, ticket.AssignedExpertID)
}

func TestTicketContext_RecordRedirect_RejectsRequester(t *testing.T) {
	ticket := NewTicket("subject", "desc", "u-100", "web")
	require.NoError(t, ticket.Assign("expert-a"))

	err := ticket.RecordRedirect("u-100", false)
	require.Error(t, err)

	// The reassign override never opens the door to the requester.
	err = ticket.RecordRedirect("u-100", true)
	require.Error(t, err)
	assert.Equal(t, "expert-a", ticket.AssignedExpertID)
	assert.Equal(t, 0, ticket.RedirectCount)
}
