package syncjob

import "github.com/onnwee/officer-sync/roster"

// Endpoint is one report type processed by a job.
type Endpoint struct {
	Name       string      `json:"name"`
	ChannelKey string      `json:"channelKey"`
	Mode       roster.Mode `json:"mode"`
}

// Catalog returns the endpoints in processing order.
func Catalog() []Endpoint {
	return []Endpoint{
		{Name: "SIM", ChannelKey: "sim", Mode: roster.ModeContent},
		{Name: "STNK", ChannelKey: "stnk", Mode: roster.ModeContent},
		{Name: "SITA", ChannelKey: "sita", Mode: roster.ModeAuthor},
		{Name: "PENILANGAN", ChannelKey: "penilangan", Mode: roster.ModeAuthor},
		{Name: "IMPOUND", ChannelKey: "impound", Mode: roster.ModeAuthor},
		{Name: "PENGELUARAN", ChannelKey: "pengeluaran", Mode: roster.ModeAuthor},
	}
}

// ChannelKeys lists the channel keys Catalog depends on.
func ChannelKeys() []string {
	cat := Catalog()
	keys := make([]string, 0, len(cat))
	for _, ep := range cat {
		keys = append(keys, ep.ChannelKey)
	}
	return keys
}
