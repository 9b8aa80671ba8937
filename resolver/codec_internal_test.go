// SPDX-License-Identifier: GPL-3.0-or-later

package resolver

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecQueryOnTheWire(t *testing.T) {
	raw, err := encodeMessage(newQuery(0x1234, "example.com", TypeA))
	require.NoError(t, err)

	msg, err := decodeMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), msg.ID)
	assert.False(t, msg.QR)
	require.Len(t, msg.Questions, 1)
	assert.Equal(t, "example.com", string(msg.Questions[0].Name))
	assert.Equal(t, layers.DNSTypeA, msg.Questions[0].Type)
}

func TestParseResponseUsesSmallestTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := &layers.DNS{
		QR: true,
		Answers: []layers.DNSResourceRecord{
			newAnswerA("example.com", netip.MustParseAddr("10.0.0.1"), 300),
			newAnswerA("example.com", netip.MustParseAddr("10.0.0.2"), 30),
		},
	}

	raw, err := encodeMessage(resp)
	require.NoError(t, err)
	decoded, err := decodeMessage(raw)
	require.NoError(t, err)

	entry, err := parseResponse(decoded, "example.com", TypeA, now)
	require.NoError(t, err)
	assert.Len(t, entry.Addrs, 2)
	assert.Equal(t, now.Add(30*time.Second), entry.Expires)
}

func TestParseResponseRejectsQueries(t *testing.T) {
	_, err := parseResponse(newQuery(1, "example.com", TypeA), "example.com", TypeA, time.Now())
	require.ErrorIs(t, err, ErrFault)
}
