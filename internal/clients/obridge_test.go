package clients

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildEventQuery(t *testing.T) {
	query := BuildEventQuery([]QueryTag{
		{Key: "recv_packet.packet_sequence", Value: "42"},
		{Key: "recv_packet.packet_src_channel", Value: "channel-29"},
		{Key: "recv_packet.packet_dst_channel", Value: "channel-1"},
	})

	require.Equal(t,
		"recv_packet.packet_sequence='42' AND recv_packet.packet_src_channel='channel-29' AND recv_packet.packet_dst_channel='channel-1'",
		query)
}

func TestBuildEventQueryStripsQuotes(t *testing.T) {
	require.Equal(t, "a.b='x OR 1=1'", BuildEventQuery([]QueryTag{{Key: "a.b", Value: "x' OR 1=1"}}))
}
